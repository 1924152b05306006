// Package notify delivers change events after an award commits.
//
// Delivery is best-effort. The award is durable before any notifier runs,
// and a notifier error is logged by the caller, never rolled back. Events
// carry the resulting balance; consumers must display NewBalance and never
// add PointsAdded to a balance of their own.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/loyalty/internal/ledger"
)

// Notifier receives change events.
type Notifier interface {
	Notify(ctx context.Context, ev ledger.ChangeEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev ledger.ChangeEvent) error

// Notify calls f(ctx, ev).
func (f NotifierFunc) Notify(ctx context.Context, ev ledger.ChangeEvent) error {
	return f(ctx, ev)
}

// Nop discards every event.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, ledger.ChangeEvent) error { return nil }

// Multi fans an event out to every notifier in order. All notifiers are
// called even if some fail; the failures are joined.
type Multi []Notifier

// Notify delivers ev to each notifier.
func (m Multi) Notify(ctx context.Context, ev ledger.ChangeEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes each event to a structured logger at Info level.
type Log struct {
	Logger *slog.Logger
}

// Notify logs ev.
func (l Log) Notify(ctx context.Context, ev ledger.ChangeEvent) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "points awarded",
		"event_id", ev.ID,
		"customer_id", ev.CustomerID,
		"program_id", ev.ProgramID,
		"card_id", ev.CardID,
		"points_added", ev.PointsAdded,
		"new_balance", ev.NewBalance)
	return nil
}
