package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAssertions(t *testing.T, flow []Step, assertions ...Assertion) *Result {
	t.Helper()
	result, err := Run(&Scenario{
		Name:        "assertions",
		Description: "assertion checks",
		Setup:       []Step{enrollStep()},
		Flow:        flow,
		Assertions:  assertions,
	})
	require.NoError(t, err)
	return result
}

func TestAssertions_Pass(t *testing.T) {
	result := runAssertions(t,
		[]Step{awardStep("k1", 5, nil), awardStep("k2", 7, nil)},
		Assertion{Type: AssertBalance, Customer: "cust-1", Program: "prog-1", Points: ptr(int64(12))},
		Assertion{Type: AssertCardCount, Customer: "cust-1", Program: "prog-1", Count: ptr(1)},
		Assertion{Type: AssertActivityCount, Customer: "cust-1", Program: "prog-1", Count: ptr(2)},
		Assertion{Type: AssertEventCount, Count: ptr(2)},
		Assertion{Type: AssertNoCard, Customer: "cust-2", Program: "prog-1"},
		Assertion{Type: AssertActivityCount, Customer: "cust-2", Program: "prog-1", Count: ptr(0)},
		Assertion{Type: AssertAuditClean},
	)
	assert.True(t, result.Pass, result.Errors)
}

func TestAssertions_Fail(t *testing.T) {
	result := runAssertions(t,
		[]Step{awardStep("k1", 5, nil)},
		Assertion{Type: AssertBalance, Customer: "cust-1", Program: "prog-1", Points: ptr(int64(6))},
		Assertion{Type: AssertBalance, Customer: "cust-2", Program: "prog-1", Points: ptr(int64(0))},
		Assertion{Type: AssertCardCount, Customer: "cust-1", Program: "prog-1", Count: ptr(2)},
		Assertion{Type: AssertNoCard, Customer: "cust-1", Program: "prog-1"},
		Assertion{Type: AssertActivityCount, Customer: "cust-1", Program: "prog-1", Count: ptr(3)},
		Assertion{Type: AssertActivityCount, Customer: "cust-2", Program: "prog-1", Count: ptr(1)},
		Assertion{Type: AssertEventCount, Count: ptr(0)},
	)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"assertions[0]: balance: expected 6 points for cust-1/prog-1, got 5",
		"assertions[1]: balance: expected 0 points for cust-2/prog-1, got no active card",
		"assertions[2]: card_count: expected 2 card(s) for cust-1/prog-1, got 1",
		"assertions[3]: no_card: expected 0 card(s) for cust-1/prog-1, got 1",
		"assertions[4]: activity_count: expected 3 activities for cust-1/prog-1, got 1",
		"assertions[5]: activity_count: expected 1 activities for cust-2/prog-1, got no active card",
		"assertions[6]: event_count: expected 0 change event(s), got 1",
	}, result.Errors)
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{Type: AssertAuditClean, Expected: "no mismatches", Actual: "card-1(activity_sum)"}
	assert.Equal(t, "audit_clean: expected no mismatches, got card-1(activity_sum)", err.Error())
}
