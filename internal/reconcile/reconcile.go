// Package reconcile decides which stored value is a card's balance.
//
// The card's points column is the only source of truth. Legacy rows that
// carried several balance-like columns are reconciled once, at import, by
// Resolve; afterwards every read path goes through Points and nothing else.
package reconcile

import (
	"github.com/roach88/loyalty/internal/ledger"
)

// Points returns the balance to report for a card.
func Points(card ledger.Card) int64 {
	return card.Points
}

// LegacyBalance holds the historical balance columns of a legacy card row.
// A nil field was absent or NULL in the source.
type LegacyBalance struct {
	Points            *int64 `yaml:"points" json:"points,omitempty"`
	PointsBalance     *int64 `yaml:"points_balance" json:"pointsBalance,omitempty"`
	TotalPointsEarned *int64 `yaml:"total_points_earned" json:"totalPointsEarned,omitempty"`
}

// Source names which legacy column a Resolution was taken from.
type Source string

const (
	SourcePoints        Source = "points"
	SourcePointsBalance Source = "points_balance"
	SourceNone          Source = "none"
)

// Resolution is the outcome of reconciling one legacy row.
type Resolution struct {
	// Points is the balance carried forward. Never negative.
	Points int64

	// Source is the column Points was taken from.
	Source Source

	// Drift lists the columns whose value differs from Points. They are
	// reported, never written back.
	Drift []string

	// Clamped is set when the chosen value was negative and reset to 0.
	Clamped bool
}

// Resolve applies the migration policy to a legacy row: points wins; when it
// is absent points_balance is used; otherwise the balance is 0.
// total_points_earned is lifetime accrual, not a balance, and is only ever
// reported as drift.
func Resolve(lb LegacyBalance) Resolution {
	var r Resolution
	switch {
	case lb.Points != nil:
		r.Points, r.Source = *lb.Points, SourcePoints
	case lb.PointsBalance != nil:
		r.Points, r.Source = *lb.PointsBalance, SourcePointsBalance
	default:
		r.Source = SourceNone
	}

	if r.Points < 0 {
		r.Points = 0
		r.Clamped = true
	}

	if lb.Points != nil && *lb.Points != r.Points {
		r.Drift = append(r.Drift, string(SourcePoints))
	}
	if lb.PointsBalance != nil && *lb.PointsBalance != r.Points {
		r.Drift = append(r.Drift, string(SourcePointsBalance))
	}
	if lb.TotalPointsEarned != nil && *lb.TotalPointsEarned != r.Points {
		r.Drift = append(r.Drift, "total_points_earned")
	}
	return r
}
