package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/loyalty/internal/ledger"
)

// Tx is a ledger transaction. All award work (idempotency lookup, card
// provisioning, ApplyDelta) runs on one Tx so it commits or rolls back as
// a unit.
type Tx struct {
	tx *sql.Tx
}

// DuplicateActivityError reports that the idempotency key was already
// claimed. Existing is the record that claimed it; no balance changed.
type DuplicateActivityError struct {
	Existing ledger.Activity
}

func (e *DuplicateActivityError) Error() string {
	return fmt.Sprintf("idempotency key %q already applied by activity %s", e.Existing.IdempotencyKey, e.Existing.ID)
}

// WithTx runs fn in a single database transaction. The transaction commits
// if fn returns nil and rolls back otherwise, including on panic. Errors
// returned by fn are passed through unwrapped.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetCard retrieves a card by id. Returns sql.ErrNoRows if not found.
func (t *Tx) GetCard(ctx context.Context, id string) (ledger.Card, error) {
	return getCard(ctx, t.tx, id)
}

// GetActiveCard retrieves the active card for an enrollment.
// Returns sql.ErrNoRows if none exists.
func (t *Tx) GetActiveCard(ctx context.Context, customerID, programID string) (ledger.Card, error) {
	return getActiveCard(ctx, t.tx, customerID, programID)
}

// GetEnrollment retrieves an enrollment of any status.
// Returns sql.ErrNoRows if not found.
func (t *Tx) GetEnrollment(ctx context.Context, customerID, programID string) (ledger.Enrollment, error) {
	return getEnrollment(ctx, t.tx, customerID, programID)
}

// GetProgram retrieves a catalog program. Returns sql.ErrNoRows if not found.
func (t *Tx) GetProgram(ctx context.Context, id string) (ledger.Program, error) {
	return getProgram(ctx, t.tx, id)
}

// FindActivity retrieves the activity that claimed an idempotency key.
// Returns sql.ErrNoRows if the key is unused.
func (t *Tx) FindActivity(ctx context.Context, idempotencyKey string) (ledger.Activity, error) {
	return findActivity(ctx, t.tx, idempotencyKey)
}

// CreateCard inserts a new card. Points are forced to 0: a balance only
// ever arrives through ApplyDelta.
//
// Returns ErrDuplicateCard when the enrollment already has an active card
// and ErrDuplicateCardNumber when the card number is taken. In SQLite a
// failed statement does not abort the transaction, so callers may retry
// within the same Tx.
func (t *Tx) CreateCard(ctx context.Context, card ledger.Card) error {
	active := 0
	if card.Active {
		active = 1
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cards
		(id, customer_id, business_id, program_id, card_number, tier, points, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`,
		card.ID,
		card.CustomerID,
		card.BusinessID,
		card.ProgramID,
		card.CardNumber,
		card.Tier,
		active,
		formatTime(card.CreatedAt),
		formatTime(card.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "cards.card_number") {
				return fmt.Errorf("create card: %w", ErrDuplicateCardNumber)
			}
			return fmt.Errorf("create card: %w", ErrDuplicateCard)
		}
		return fmt.Errorf("create card: %w", err)
	}
	return nil
}

// ApplyDelta is the only mutator of cards.points. Within the transaction it:
//
//  1. reads the card row (the IMMEDIATE transaction already holds the lock)
//  2. claims act.IdempotencyKey with ON CONFLICT DO NOTHING; if the key is
//     taken it returns *DuplicateActivityError and changes nothing
//  3. compare-and-sets points from the value read in step 1
//  4. copies the new balance into the enrollment cache
//
// act.CardID and act.BalanceAfter are filled in; the stored record is
// returned. ErrConflict means the compare-and-set lost and the whole
// transaction must be retried.
func (t *Tx) ApplyDelta(ctx context.Context, cardID string, act ledger.Activity) (ledger.Activity, error) {
	card, err := getCard(ctx, t.tx, cardID)
	if err != nil {
		return ledger.Activity{}, fmt.Errorf("apply delta: read card %s: %w", cardID, err)
	}
	if !card.Active {
		return ledger.Activity{}, fmt.Errorf("apply delta: card %s: %w", cardID, ErrCardInactive)
	}

	// A replay must report the duplicate even if the delta would no longer
	// fit the current balance.
	existing, err := findActivity(ctx, t.tx, act.IdempotencyKey)
	switch {
	case err == nil:
		return existing, &DuplicateActivityError{Existing: existing}
	case !errors.Is(err, sql.ErrNoRows):
		return ledger.Activity{}, fmt.Errorf("apply delta: lookup key: %w", err)
	}

	newBalance := card.Points + act.Delta
	if newBalance < 0 {
		return ledger.Activity{}, fmt.Errorf("apply delta: card %s: %w", cardID, ErrNegativeBalance)
	}
	act.CardID = cardID
	act.BalanceAfter = newBalance

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO activities
		(id, card_id, type, source_type, delta, balance_after, description, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING
	`,
		act.ID,
		act.CardID,
		string(act.Type),
		string(act.SourceType),
		act.Delta,
		act.BalanceAfter,
		act.Description,
		act.IdempotencyKey,
		formatTime(act.CreatedAt),
	)
	if err != nil {
		return ledger.Activity{}, fmt.Errorf("apply delta: insert activity: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return ledger.Activity{}, fmt.Errorf("apply delta: rows affected: %w", err)
	}
	if inserted == 0 {
		existing, err := findActivity(ctx, t.tx, act.IdempotencyKey)
		if err != nil {
			return ledger.Activity{}, fmt.Errorf("apply delta: select existing: %w", err)
		}
		return existing, &DuplicateActivityError{Existing: existing}
	}

	result, err = t.tx.ExecContext(ctx, `
		UPDATE cards
		SET points = ?, updated_at = ?
		WHERE id = ? AND points = ?
	`, newBalance, formatTime(act.CreatedAt), cardID, card.Points)
	if err != nil {
		return ledger.Activity{}, fmt.Errorf("apply delta: update card: %w", err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return ledger.Activity{}, fmt.Errorf("apply delta: rows affected: %w", err)
	}
	if updated == 0 {
		return ledger.Activity{}, fmt.Errorf("apply delta: card %s: %w", cardID, ErrConflict)
	}

	_, err = t.tx.ExecContext(ctx, `
		UPDATE enrollments
		SET points_cache = ?, last_activity_at = ?
		WHERE customer_id = ? AND program_id = ?
	`, newBalance, formatTime(act.CreatedAt), card.CustomerID, card.ProgramID)
	if err != nil {
		return ledger.Activity{}, fmt.Errorf("apply delta: update enrollment cache: %w", err)
	}

	return act, nil
}

// IsDuplicate reports whether err is a *DuplicateActivityError and returns
// the record that already claimed the key.
func IsDuplicate(err error) (ledger.Activity, bool) {
	var de *DuplicateActivityError
	if errors.As(err, &de) {
		return de.Existing, true
	}
	return ledger.Activity{}, false
}
