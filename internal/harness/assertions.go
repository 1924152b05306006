package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/loyalty/internal/reconcile"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

func (h *Harness) check(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertBalance:
		return h.assertBalance(ctx, a)
	case AssertNoCard:
		return h.assertCardCount(ctx, a, 0)
	case AssertCardCount:
		return h.assertCardCount(ctx, a, *a.Count)
	case AssertActivityCount:
		return h.assertActivityCount(ctx, a)
	case AssertEventCount:
		return h.assertEventCount(a)
	case AssertAuditClean:
		return h.assertAuditClean(ctx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) assertBalance(ctx context.Context, a Assertion) error {
	bal, err := reconcile.NewReader(h.store).Balance(ctx, a.Customer, a.Program)
	if errors.Is(err, reconcile.ErrCardNotFound) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d points for %s/%s", *a.Points, a.Customer, a.Program),
			Actual:   "no active card",
		}
	}
	if err != nil {
		return err
	}
	if bal.Points != *a.Points {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d points for %s/%s", *a.Points, a.Customer, a.Program),
			Actual:   fmt.Sprintf("%d", bal.Points),
		}
	}
	return nil
}

func (h *Harness) assertCardCount(ctx context.Context, a Assertion, want int) error {
	n, err := h.store.CountCards(ctx, a.Customer, a.Program)
	if err != nil {
		return err
	}
	if n != want {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d card(s) for %s/%s", want, a.Customer, a.Program),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertActivityCount counts records on the pair's active card.
func (h *Harness) assertActivityCount(ctx context.Context, a Assertion) error {
	card, err := h.store.GetActiveCard(ctx, a.Customer, a.Program)
	if errors.Is(err, sql.ErrNoRows) {
		if *a.Count == 0 {
			return nil
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d activities for %s/%s", *a.Count, a.Customer, a.Program),
			Actual:   "no active card",
		}
	}
	if err != nil {
		return err
	}

	n, err := h.store.CountActivities(ctx, card.ID)
	if err != nil {
		return err
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d activities for %s/%s", *a.Count, a.Customer, a.Program),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

func (h *Harness) assertEventCount(a Assertion) error {
	n := len(h.events.Events())
	if n != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d change event(s)", *a.Count),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

func (h *Harness) assertAuditClean(ctx context.Context) error {
	report, err := reconcile.Audit(ctx, h.store)
	if err != nil {
		return err
	}
	if report.Clean() {
		return nil
	}

	cards := make([]string, 0, len(report.Mismatches))
	for _, m := range report.Mismatches {
		cards = append(cards, fmt.Sprintf("%s(%s)", m.CardID, strings.Join(m.Kinds, ",")))
	}
	return &AssertionError{
		Type:     AssertAuditClean,
		Expected: "no mismatches",
		Actual:   strings.Join(cards, " "),
	}
}
