// Package award is the single entry point for crediting points.
//
// Award validates the request, then in one store transaction looks up the
// idempotency key, provisions the card if needed and applies the delta
// through store.Tx.ApplyDelta, the only writer of a card's balance. The
// change event is emitted after commit and only for non-duplicate awards.
package award

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/loyalty/internal/ledger"
	"github.com/roach88/loyalty/internal/notify"
	"github.com/roach88/loyalty/internal/provision"
	"github.com/roach88/loyalty/internal/store"
)

// Defaults for the retry policy.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 25 * time.Millisecond
	DefaultTimeout     = 5 * time.Second
)

// Ledger runs a function in one store transaction.
// Satisfied by *store.Store.
type Ledger interface {
	WithTx(ctx context.Context, fn func(*store.Tx) error) error
}

// Engine applies awards.
type Engine struct {
	store       Ledger
	provisioner *provision.Provisioner
	notifier    notify.Notifier
	ids         ledger.IDGenerator
	clock       ledger.Clock
	logger      *slog.Logger

	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNotifier sets the change notifier. Defaults to notify.Nop.
func WithNotifier(n notify.Notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithIDGenerator sets the activity id generator. Defaults to UUIDv7.
func WithIDGenerator(g ledger.IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the clock for activity timestamps and events.
func WithClock(c ledger.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMaxAttempts bounds how many times a conflicting award is tried.
// Values below 1 are treated as 1.
func WithMaxAttempts(n int) EngineOption {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.maxAttempts = n
	}
}

// WithBackoff sets the base delay between attempts. The delay doubles
// after each failed attempt.
func WithBackoff(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.backoff = d
	}
}

// WithTimeout bounds each attempt. An attempt that exceeds it is rolled
// back entirely.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// New creates an Engine writing to st and provisioning cards with p.
func New(st Ledger, p *provision.Provisioner, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       st,
		provisioner: p,
		notifier:    notify.Nop{},
		ids:         ledger.UUIDv7Generator{},
		clock:       ledger.SystemClock{},
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Award credits req.Points to the customer's card exactly once per
// idempotency key.
//
// Replaying a key returns the balance recorded by the original award with
// Duplicate set. Every failure is an *Error.
func (e *Engine) Award(ctx context.Context, req ledger.AwardRequest) (ledger.AwardResult, error) {
	req, err := validate(req)
	if err != nil {
		return ledger.AwardResult{}, err
	}
	rc := requestContext{customerID: req.CustomerID, programID: req.ProgramID, key: req.IdempotencyKey}

	var res ledger.AwardResult
	for attempt := 1; ; attempt++ {
		res, err = e.attempt(ctx, req)
		if err == nil {
			break
		}

		aerr := e.classify(err, rc)
		if aerr.Code != CodeConcurrencyConflict || attempt >= e.maxAttempts || ctx.Err() != nil {
			e.logFailure(aerr, attempt)
			return ledger.AwardResult{}, aerr
		}

		delay := e.backoff << (attempt - 1)
		e.logger.Debug("award conflict, retrying",
			"customer_id", req.CustomerID,
			"program_id", req.ProgramID,
			"idempotency_key", req.IdempotencyKey,
			"attempt", attempt,
			"delay", delay)
		select {
		case <-ctx.Done():
			aerr = newError(CodeConcurrencyConflict, "award cancelled while retrying", rc, ctx.Err())
			e.logFailure(aerr, attempt)
			return ledger.AwardResult{}, aerr
		case <-time.After(delay):
		}
	}

	if !res.Duplicate {
		e.emit(ctx, req, res)
	}
	return res, nil
}

// attempt runs one award transaction under the per-attempt timeout.
func (e *Engine) attempt(ctx context.Context, req ledger.AwardRequest) (ledger.AwardResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var res ledger.AwardResult
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		existing, err := tx.FindActivity(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			res, err = duplicateResult(ctx, tx, req, existing)
			return err
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup idempotency key: %w", err)
		}

		card, created, err := e.provisioner.Ensure(ctx, tx, req.CustomerID, req.BusinessID, req.ProgramID)
		if err != nil {
			return err
		}

		act := ledger.Activity{
			ID:             e.ids.Generate(),
			Type:           ledger.ActivityTypeFor(req.SourceType),
			SourceType:     req.SourceType,
			Delta:          req.Points,
			Description:    req.Description,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      e.clock.Now(),
		}
		stored, err := tx.ApplyDelta(ctx, card.ID, act)
		if existing, ok := store.IsDuplicate(err); ok {
			res, err = duplicateResult(ctx, tx, req, existing)
			return err
		}
		if err != nil {
			return err
		}

		res = ledger.AwardResult{
			Success:     true,
			CardID:      card.ID,
			NewBalance:  stored.BalanceAfter,
			CardCreated: created,
		}
		return nil
	})
	if err != nil && ctx.Err() != nil {
		// database/sql rolls back on deadline; report the deadline so the
		// attempt is classified as a conflict, not a persistence failure.
		return res, fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return res, err
}

// errMismatch marks a key reused for a different award.
var errMismatch = errors.New("idempotency key reused for a different award")

// duplicateResult answers a replayed key with the original award's outcome,
// provided the replay targets the same enrollment with the same amount.
func duplicateResult(ctx context.Context, tx *store.Tx, req ledger.AwardRequest, existing ledger.Activity) (ledger.AwardResult, error) {
	card, err := tx.GetCard(ctx, existing.CardID)
	if err != nil {
		return ledger.AwardResult{}, fmt.Errorf("read card of existing activity: %w", err)
	}
	if card.CustomerID != req.CustomerID || card.ProgramID != req.ProgramID || existing.Delta != req.Points {
		return ledger.AwardResult{}, fmt.Errorf("key %q already credited %d to card %s: %w",
			req.IdempotencyKey, existing.Delta, existing.CardID, errMismatch)
	}
	return ledger.AwardResult{
		Success:    true,
		CardID:     existing.CardID,
		NewBalance: existing.BalanceAfter,
		Duplicate:  true,
	}, nil
}

// classify maps a transaction error onto the award error taxonomy.
func (e *Engine) classify(err error, rc requestContext) *Error {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr
	}

	switch {
	case errors.Is(err, provision.ErrEnrollmentRequired),
		errors.Is(err, store.ErrCardInactive):
		return newError(CodeEnrollmentRequired, "customer is not enrolled in this program", rc, err)
	case errors.Is(err, provision.ErrBusinessMismatch):
		return newError(CodeInvalidRequest, "program does not belong to the given business", rc, err)
	case errors.Is(err, errMismatch):
		return newError(CodeIdempotencyMismatch, "idempotency key already used for a different award", rc, err)
	case errors.Is(err, store.ErrNegativeBalance):
		return newError(CodeInvalidAmount, "award would make the balance negative", rc, err)
	case errors.Is(err, store.ErrConflict),
		store.IsBusy(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return newError(CodeConcurrencyConflict, "award could not be applied, retry with the same key", rc, err)
	default:
		return newError(CodePersistenceFailure, "failed to persist award", rc, err)
	}
}

func (e *Engine) logFailure(aerr *Error, attempts int) {
	attrs := []any{
		"code", string(aerr.Code),
		"customer_id", aerr.CustomerID,
		"program_id", aerr.ProgramID,
		"idempotency_key", aerr.IdempotencyKey,
		"attempts", attempts,
	}
	if aerr.Err != nil {
		attrs = append(attrs, "error", aerr.Err)
	}
	switch aerr.Code {
	case CodePersistenceFailure:
		e.logger.Error("award failed", attrs...)
	case CodeConcurrencyConflict:
		e.logger.Warn("award failed", attrs...)
	default:
		e.logger.Debug("award rejected", attrs...)
	}
}

// emit sends the change event for a committed award. Failures are logged
// and never returned: the award is already durable.
func (e *Engine) emit(ctx context.Context, req ledger.AwardRequest, res ledger.AwardResult) {
	id, err := ledger.EventID(req.IdempotencyKey, res.CardID)
	if err != nil {
		e.logger.Error("change event id", "card_id", res.CardID, "error", err)
		return
	}
	ev := ledger.ChangeEvent{
		ID:          id,
		Type:        ledger.EventPointsAwarded,
		CustomerID:  req.CustomerID,
		BusinessID:  req.BusinessID,
		ProgramID:   req.ProgramID,
		CardID:      res.CardID,
		PointsAdded: req.Points,
		NewBalance:  res.NewBalance,
		Timestamp:   e.clock.Now(),
	}

	// The caller may cancel as soon as Award returns; delivery must not
	// depend on that.
	if err := e.notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.Warn("change notification failed",
			"event_id", ev.ID,
			"customer_id", ev.CustomerID,
			"program_id", ev.ProgramID,
			"card_id", ev.CardID,
			"error", err)
	}
}

// validate normalizes req and rejects it before any transaction opens.
func validate(req ledger.AwardRequest) (ledger.AwardRequest, error) {
	req.CustomerID = ledger.NormalizeID(req.CustomerID)
	req.BusinessID = ledger.NormalizeID(req.BusinessID)
	req.ProgramID = ledger.NormalizeID(req.ProgramID)
	req.IdempotencyKey = ledger.NormalizeKey(req.IdempotencyKey)
	rc := requestContext{customerID: req.CustomerID, programID: req.ProgramID, key: req.IdempotencyKey}

	// The amount is checked first: a zero or negative award is InvalidAmount
	// whatever else the request lacks.
	if req.Points <= 0 {
		return req, newError(CodeInvalidAmount, fmt.Sprintf("points must be greater than zero, got %d", req.Points), rc, nil)
	}

	var missing []string
	if req.CustomerID == "" {
		missing = append(missing, "customerId")
	}
	if req.BusinessID == "" {
		missing = append(missing, "businessId")
	}
	if req.ProgramID == "" {
		missing = append(missing, "programId")
	}
	if req.IdempotencyKey == "" {
		missing = append(missing, "idempotencyKey")
	}
	if req.SourceType == "" {
		missing = append(missing, "sourceType")
	}
	if len(missing) > 0 {
		return req, newError(CodeInvalidRequest, "missing "+strings.Join(missing, ", "), rc, nil)
	}

	st, err := ledger.ParseSourceType(string(req.SourceType))
	if err != nil {
		return req, newError(CodeInvalidRequest, err.Error(), rc, nil)
	}
	req.SourceType = st
	return req, nil
}
