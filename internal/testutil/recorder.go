package testutil

import (
	"context"
	"sync"

	"github.com/roach88/loyalty/internal/ledger"
)

// Recorder is a change notifier that keeps every event it receives.
// Set Err to make Notify fail after recording.
type Recorder struct {
	mu     sync.Mutex
	events []ledger.ChangeEvent
	Err    error
}

// Notify records ev. Implements notify.Notifier.
func (r *Recorder) Notify(_ context.Context, ev ledger.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []ledger.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.ChangeEvent(nil), r.events...)
}
