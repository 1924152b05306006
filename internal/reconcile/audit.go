package reconcile

import (
	"context"
	"fmt"

	"github.com/roach88/loyalty/internal/store"
)

// TotalsSource lists per-card ledger totals.
// Satisfied by *store.Store.
type TotalsSource interface {
	ListLedgerTotals(ctx context.Context) ([]store.LedgerTotals, error)
}

// Mismatch kinds reported by Audit.
const (
	MismatchActivitySum    = "activity_sum"
	MismatchPointsCache    = "points_cache"
	MismatchNoEnrollment   = "no_enrollment"
	MismatchNegativePoints = "negative_points"
)

// Mismatch describes one card whose stored values disagree.
type Mismatch struct {
	CardID      string   `json:"cardId"`
	CustomerID  string   `json:"customerId"`
	ProgramID   string   `json:"programId"`
	Points      int64    `json:"points"`
	ActivitySum int64    `json:"activitySum"`
	PointsCache int64    `json:"pointsCache"`
	Kinds       []string `json:"kinds"`
}

// Report is the result of an audit.
type Report struct {
	Cards      int        `json:"cards"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Clean reports whether the audit found nothing.
func (r Report) Clean() bool {
	return len(r.Mismatches) == 0
}

// Audit checks, for every card, that points equals the sum of its activity
// deltas and, for active cards, that the enrollment cache matches.
// Audit only reads; corrections are made with ADJUSTMENT awards.
func Audit(ctx context.Context, src TotalsSource) (Report, error) {
	totals, err := src.ListLedgerTotals(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("audit: %w", err)
	}

	report := Report{Cards: len(totals), Mismatches: []Mismatch{}}
	for _, t := range totals {
		var kinds []string
		if t.Points < 0 {
			kinds = append(kinds, MismatchNegativePoints)
		}
		if t.Points != t.ActivitySum {
			kinds = append(kinds, MismatchActivitySum)
		}
		if !t.HasEnrolled {
			kinds = append(kinds, MismatchNoEnrollment)
		} else if t.Active && t.PointsCache != t.Points {
			kinds = append(kinds, MismatchPointsCache)
		}
		if len(kinds) == 0 {
			continue
		}
		report.Mismatches = append(report.Mismatches, Mismatch{
			CardID:      t.CardID,
			CustomerID:  t.CustomerID,
			ProgramID:   t.ProgramID,
			Points:      t.Points,
			ActivitySum: t.ActivitySum,
			PointsCache: t.PointsCache,
			Kinds:       kinds,
		})
	}
	return report, nil
}
