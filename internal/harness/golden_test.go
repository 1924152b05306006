package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioDir holds the shared scenario files, also run by `loyalty test`.
const scenarioDir = "../../testdata/scenarios"

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(scenarioDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match file name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed: %v", result.Errors)
		})
	}
}

func TestCanonicalTrace_Deterministic(t *testing.T) {
	scenario := &Scenario{
		Name:        "determinism",
		Description: "two runs produce identical bytes",
		Setup:       []Step{enrollStep()},
		Flow:        []Step{awardStep("k1", 3, nil), awardStep("k1", 3, nil)},
	}

	var traces []string
	for i := 0; i < 3; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		data, err := CanonicalTrace(scenario.Name, result)
		require.NoError(t, err)
		traces = append(traces, string(data))
	}
	assert.Equal(t, traces[0], traces[1])
	assert.Equal(t, traces[0], traces[2])
	assert.True(t, strings.HasPrefix(traces[0], `{"scenario_name":"determinism","trace":[`))
}

func TestCanonicalTrace_OmitsEmptyArgs(t *testing.T) {
	result := NewResult()
	result.addTrace(EventNotify, nil, map[string]any{"new_balance": int64(1)})

	data, err := CanonicalTrace("x", result)
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"x","trace":[{"kind":"notify","outcome":{"new_balance":1},"seq":1}]}`, string(data))
}
