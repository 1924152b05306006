package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loyalty/internal/ledger"
	"github.com/roach88/loyalty/internal/store"
)

func ptr(v int64) *int64 { return &v }

func TestPoints(t *testing.T) {
	assert.Equal(t, int64(42), Points(ledger.Card{Points: 42}))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		in      LegacyBalance
		points  int64
		source  Source
		drift   []string
		clamped bool
	}{
		{
			name:   "points wins over divergent remnants",
			in:     LegacyBalance{Points: ptr(120), PointsBalance: ptr(240), TotalPointsEarned: ptr(500)},
			points: 120,
			source: SourcePoints,
			drift:  []string{"points_balance", "total_points_earned"},
		},
		{
			name:   "all columns agree",
			in:     LegacyBalance{Points: ptr(80), PointsBalance: ptr(80), TotalPointsEarned: ptr(80)},
			points: 80,
			source: SourcePoints,
		},
		{
			name:   "points_balance when points missing",
			in:     LegacyBalance{PointsBalance: ptr(60), TotalPointsEarned: ptr(90)},
			points: 60,
			source: SourcePointsBalance,
			drift:  []string{"total_points_earned"},
		},
		{
			name:   "total earned alone is never a balance",
			in:     LegacyBalance{TotalPointsEarned: ptr(300)},
			points: 0,
			source: SourceNone,
			drift:  []string{"total_points_earned"},
		},
		{
			name:   "nothing present",
			in:     LegacyBalance{},
			points: 0,
			source: SourceNone,
		},
		{
			name:    "negative clamps to zero",
			in:      LegacyBalance{Points: ptr(-15)},
			points:  0,
			source:  SourcePoints,
			drift:   []string{"points"},
			clamped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resolve(tt.in)
			assert.Equal(t, tt.points, r.Points)
			assert.Equal(t, tt.source, r.Source)
			assert.Equal(t, tt.drift, r.Drift)
			assert.Equal(t, tt.clamped, r.Clamped)
		})
	}
}

type fakeTotals struct {
	totals []store.LedgerTotals
	err    error
}

func (f fakeTotals) ListLedgerTotals(context.Context) ([]store.LedgerTotals, error) {
	return f.totals, f.err
}

func TestAudit(t *testing.T) {
	src := fakeTotals{totals: []store.LedgerTotals{
		{CardID: "ok", Active: true, Points: 10, ActivitySum: 10, PointsCache: 10, HasEnrolled: true},
		{CardID: "sum", Active: true, Points: 30, ActivitySum: 10, PointsCache: 30, HasEnrolled: true},
		{CardID: "cache", Active: true, Points: 10, ActivitySum: 10, PointsCache: 20, HasEnrolled: true},
		{CardID: "inactive", Active: false, Points: 10, ActivitySum: 10, PointsCache: 0, HasEnrolled: true},
		{CardID: "orphan", Active: true, Points: 0, ActivitySum: 0, HasEnrolled: false},
	}}

	report, err := Audit(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Cards)
	assert.False(t, report.Clean())
	require.Len(t, report.Mismatches, 3)

	assert.Equal(t, "sum", report.Mismatches[0].CardID)
	assert.Equal(t, []string{MismatchActivitySum}, report.Mismatches[0].Kinds)
	assert.Equal(t, "cache", report.Mismatches[1].CardID)
	assert.Equal(t, []string{MismatchPointsCache}, report.Mismatches[1].Kinds)
	assert.Equal(t, "orphan", report.Mismatches[2].CardID)
	assert.Equal(t, []string{MismatchNoEnrollment}, report.Mismatches[2].Kinds)
}

func TestAudit_Clean(t *testing.T) {
	report, err := Audit(context.Background(), fakeTotals{})
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.NotNil(t, report.Mismatches, "empty list, not null, in JSON output")
}

func TestAudit_SourceError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Audit(context.Background(), fakeTotals{err: boom})
	assert.ErrorIs(t, err, boom)
}
