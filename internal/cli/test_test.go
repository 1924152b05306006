package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loyalty/internal/harness"
)

const (
	repoScenarios = "../../testdata/scenarios"
	repoGoldens   = "../harness/testdata/golden"
)

const passingScenario = `name: one_award
description: A single award on a fresh enrollment
setup:
  - enroll: {customer: c1, business: b1, program: p1}
flow:
  - award: {customer: c1, business: b1, program: p1, points: 5, source: SCAN, key: k1}
    expect: {balance: 5}
assertions:
  - {type: balance, customer: c1, program: p1, points: 5}
`

const failingScenario = `name: wrong_balance
description: Expects a balance the award cannot produce
setup:
  - enroll: {customer: c1, business: b1, program: p1}
flow:
  - award: {customer: c1, business: b1, program: p1, points: 5, source: SCAN, key: k1}
    expect: {balance: 6}
`

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewTestCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyDirJSON(t *testing.T) {
	out, err := runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandRepoScenarios(t *testing.T) {
	out, err := runTestCommand(t, "text", repoScenarios, "--golden-dir", repoGoldens)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ award_replay")
	assert.Contains(t, out, "✓ enrollment_lifecycle")
	assert.Contains(t, out, "0 failed")
	assert.Contains(t, out, "All scenarios passed")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := runTestCommand(t, "json", repoScenarios, "--golden-dir", repoGoldens, "--filter", "award_replay")
	require.NoError(t, err, out)

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, 1, response.Data.Total)
	require.Len(t, response.Data.Scenarios, 1)
	assert.Equal(t, "award_replay", response.Data.Scenarios[0].Name)
}

func TestTestCommandNoGoldenChecksAssertionsOnly(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "one_award.yaml", passingScenario)

	out, err := runTestCommand(t, "text", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ one_award")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong_balance.yaml", failingScenario)

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_balance")
	assert.Contains(t, out, "expected balance 6, got 5")
	assert.Contains(t, out, "1 failed")
}

func TestTestCommandFailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong_balance.yaml", failingScenario)

	out, err := runTestCommand(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "error", response.Status)
	require.NotNil(t, response.Error)
	assert.Equal(t, "E_TEST_FAILED", response.Error.Code)
}

func TestTestCommandInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\n")

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "one_award.yaml", passingScenario)

	out, err := runTestCommand(t, "text", path, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "golden updated")

	golden := filepath.Join(dir, "golden", "one_award.golden")
	got, err := os.ReadFile(golden)
	require.NoError(t, err)

	scenario, err := harness.LoadScenario(path)
	require.NoError(t, err)
	result, err := harness.Run(scenario)
	require.NoError(t, err)
	want, err := harness.CanonicalTrace(scenario.Name, result)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	out, err = runTestCommand(t, "text", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ one_award")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "one_award.yaml", passingScenario)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "one_award.golden"), []byte(`{"stale":true}`), 0644))

	out, err := runTestCommand(t, "text", path)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestHelpText(t *testing.T) {
	out, err := runTestCommand(t, "text", "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "in-memory ledger")
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
	assert.Contains(t, out, "--golden-dir")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "award-replay.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "award-zero.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "enroll-basic.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "award-*")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	for _, f := range files {
		assert.Contains(t, filepath.Base(f), "award-")
	}
}

func TestFindScenarioFilesBadFilter(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.yaml"), []byte(""), 0644))

	_, err := findScenarioFiles(tmpDir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestFindScenarioFilesSubdirectories(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "root.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "sub.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		goldenDir string
		input     string
		name      string
		expected  string
	}{
		{"", "/path/to/scenario.yaml", "award_replay", "/path/to/golden/award_replay.golden"},
		{"", "scenarios/test.yml", "test", "scenarios/golden/test.golden"},
		{"/goldens", "scenarios/test.yaml", "renamed", "/goldens/renamed.golden"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, goldenFilePath(tc.goldenDir, tc.input, tc.name))
	}
}
