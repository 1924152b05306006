package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/loyalty/internal/award"
	"github.com/roach88/loyalty/internal/ledger"
	"github.com/roach88/loyalty/internal/provision"
	"github.com/roach88/loyalty/internal/store"
	"github.com/roach88/loyalty/internal/testutil"
)

// Harness executes one scenario against its own store.
type Harness struct {
	store  *store.Store
	engine *award.Engine
	events *testutil.Recorder
	clock  *testutil.DeterministicClock

	// traced is how many recorded change events are already in the trace.
	traced int
}

// Run executes a scenario and returns the result.
//
// Each run uses a fresh in-memory database, a deterministic clock and
// sequential ids. The returned error is reserved for harness failures
// (store setup, a failing setup step); expectation and assertion failures
// are reported in Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewDeterministicClock()
	rec := &testutil.Recorder{}

	prov := provision.New(testutil.NewSequenceGenerator("LC"),
		provision.WithIDGenerator(testutil.NewSequenceGenerator("card")),
		provision.WithClock(clock),
		provision.WithLogger(logger),
	)
	eng := award.New(st, prov,
		award.WithNotifier(rec),
		award.WithIDGenerator(testutil.NewSequenceGenerator("act")),
		award.WithClock(clock),
		award.WithLogger(logger),
	)

	h := &Harness{
		store:  st,
		engine: eng,
		events: rec,
		clock:  clock,
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Setup {
		if err := h.setup(ctx, step); err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	h.traced = len(rec.Events())

	for i, step := range scenario.Flow {
		h.flow(ctx, i, step, result)
	}

	for i, a := range scenario.Assertions {
		if err := h.check(ctx, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return result, nil
}

func (h *Harness) setup(ctx context.Context, step Step) error {
	switch {
	case step.Enroll != nil:
		_, err := h.enroll(ctx, step.Enroll)
		return err
	case step.SetStatus != nil:
		return h.setStatus(ctx, step.SetStatus)
	case step.Award != nil:
		_, err := h.engine.Award(ctx, *step.Award)
		return err
	}
	return errors.New("empty step")
}

func (h *Harness) enroll(ctx context.Context, s *EnrollStep) (ledger.Enrollment, error) {
	return h.store.Enroll(ctx, ledger.Enrollment{
		CustomerID: s.Customer,
		ProgramID:  s.Program,
		BusinessID: s.Business,
		EnrolledAt: h.clock.Now(),
	})
}

func (h *Harness) setStatus(ctx context.Context, s *StatusStep) error {
	return h.store.SetEnrollmentStatus(ctx, s.Customer, s.Program, ledger.EnrollmentStatus(s.Status), h.clock.Now())
}

func (h *Harness) flow(ctx context.Context, i int, step Step, result *Result) {
	switch {
	case step.Enroll != nil:
		args := map[string]any{
			"customer": step.Enroll.Customer,
			"business": step.Enroll.Business,
			"program":  step.Enroll.Program,
		}
		enr, err := h.enroll(ctx, step.Enroll)
		if err != nil {
			result.addTrace(EventEnroll, args, errorOutcome(err))
			return
		}
		result.addTrace(EventEnroll, args, map[string]any{"status": string(enr.Status)})

	case step.SetStatus != nil:
		args := map[string]any{
			"customer": step.SetStatus.Customer,
			"program":  step.SetStatus.Program,
			"status":   step.SetStatus.Status,
		}
		if err := h.setStatus(ctx, step.SetStatus); err != nil {
			result.addTrace(EventSetStatus, args, errorOutcome(err))
			return
		}
		result.addTrace(EventSetStatus, args, map[string]any{"status": step.SetStatus.Status})

	case step.Award != nil:
		req := *step.Award
		res, err := h.engine.Award(ctx, req)
		result.addTrace(EventAward, awardArgs(req), awardOutcome(res, err))
		if step.Expect != nil {
			if msg := checkExpect(step.Expect, res, err); msg != "" {
				result.AddError(fmt.Sprintf("flow[%d]: %s", i, msg))
			}
		}
		h.traceEvents(result)
	}
}

// traceEvents appends change events recorded since the last call.
func (h *Harness) traceEvents(result *Result) {
	events := h.events.Events()
	for _, ev := range events[h.traced:] {
		result.addTrace(EventNotify, nil, map[string]any{
			"event_id":     ev.ID,
			"type":         ev.Type,
			"card_id":      ev.CardID,
			"points_added": ev.PointsAdded,
			"new_balance":  ev.NewBalance,
		})
	}
	h.traced = len(events)
}

func awardArgs(req ledger.AwardRequest) map[string]any {
	args := map[string]any{
		"customer": req.CustomerID,
		"business": req.BusinessID,
		"program":  req.ProgramID,
		"points":   req.Points,
		"source":   string(req.SourceType),
		"key":      req.IdempotencyKey,
	}
	if req.Description != "" {
		args["description"] = req.Description
	}
	return args
}

func awardOutcome(res ledger.AwardResult, err error) map[string]any {
	if err != nil {
		return map[string]any{
			"success": false,
			"error":   string(award.CodeOf(err)),
		}
	}
	return map[string]any{
		"success":      res.Success,
		"card_id":      res.CardID,
		"new_balance":  res.NewBalance,
		"duplicate":    res.Duplicate,
		"card_created": res.CardCreated,
	}
}

func errorOutcome(err error) map[string]any {
	switch {
	case errors.Is(err, store.ErrBusinessMismatch):
		return map[string]any{"error": "BusinessMismatch"}
	case errors.Is(err, sql.ErrNoRows):
		return map[string]any{"error": "EnrollmentNotFound"}
	default:
		return map[string]any{"error": err.Error()}
	}
}

// checkExpect returns a failure message, or "" when the outcome matches.
func checkExpect(exp *Expect, res ledger.AwardResult, err error) string {
	if exp.Error != "" {
		if err == nil {
			return fmt.Sprintf("expected error %s, award succeeded with balance %d", exp.Error, res.NewBalance)
		}
		if got := string(award.CodeOf(err)); got != exp.Error {
			return fmt.Sprintf("expected error %s, got %s (%v)", exp.Error, got, err)
		}
		return ""
	}

	if err != nil {
		return fmt.Sprintf("unexpected error: %v", err)
	}
	if exp.Balance != nil && res.NewBalance != *exp.Balance {
		return fmt.Sprintf("expected balance %d, got %d", *exp.Balance, res.NewBalance)
	}
	if exp.Duplicate != nil && res.Duplicate != *exp.Duplicate {
		return fmt.Sprintf("expected duplicate=%t, got %t", *exp.Duplicate, res.Duplicate)
	}
	if exp.Card != "" && res.CardID != exp.Card {
		return fmt.Sprintf("expected card %s, got %s", exp.Card, res.CardID)
	}
	return ""
}
