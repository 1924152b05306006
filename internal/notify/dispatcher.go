package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/loyalty/internal/ledger"
)

// ErrClosed is returned by Dispatcher.Notify after Close.
var ErrClosed = errors.New("dispatcher closed")

// Dispatcher hands events to a sink on a background goroutine so the award
// path returns without waiting on delivery.
type Dispatcher struct {
	sink   Notifier
	queue  *eventQueue
	logger *slog.Logger

	startOnce sync.Once
	started   bool
	done      chan struct{}
}

// NewDispatcher creates a dispatcher delivering to sink. Call Start to begin
// delivery and Close to drain and stop.
func NewDispatcher(sink Notifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sink:   sink,
		queue:  newEventQueue(),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Notify queues ev and returns immediately.
func (d *Dispatcher) Notify(_ context.Context, ev ledger.ChangeEvent) error {
	if !d.queue.Enqueue(ev) {
		return ErrClosed
	}
	return nil
}

// Start launches the delivery worker. ctx bounds each delivery; when it is
// cancelled the worker stops and undelivered events are dropped.
// Calling Start more than once has no effect.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.started = true
		go d.run(ctx)
	})
}

// Close stops accepting events and blocks until queued events are
// delivered or the worker's context ends. If Start was never called, Close
// returns at once and a later Start does nothing.
func (d *Dispatcher) Close() {
	d.startOnce.Do(func() {})
	d.queue.Close()
	if !d.started {
		return
	}
	<-d.done
}

// Pending returns how many events are waiting for delivery.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		for {
			ev, ok := d.queue.TryDequeue()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return
			}
			d.deliver(ctx, ev)
		}

		select {
		case <-ctx.Done():
			return
		case _, open := <-d.queue.Wait():
			if !open && d.queue.Len() == 0 {
				return
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev ledger.ChangeEvent) {
	if err := d.sink.Notify(ctx, ev); err != nil {
		d.logger.Warn("change event delivery failed",
			"event_id", ev.ID,
			"card_id", ev.CardID,
			"error", err)
	}
}
