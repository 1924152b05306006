package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/loyalty/internal/ledger"
)

// LegacyDrift is the one-time record of a legacy card's historical balance
// columns. Nil fields were absent in the legacy row.
type LegacyDrift struct {
	LegacyID          string
	CardID            string
	Points            *int64
	PointsBalance     *int64
	TotalPointsEarned *int64
	Resolved          int64
	RecordedAt        time.Time
}

// ApplyDelta runs Tx.ApplyDelta in its own transaction.
func (s *Store) ApplyDelta(ctx context.Context, cardID string, act ledger.Activity) (ledger.Activity, error) {
	var stored ledger.Activity
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		stored, err = tx.ApplyDelta(ctx, cardID, act)
		return err
	})
	return stored, err
}

// Enroll records a customer's enrollment, or reactivates an inactive one.
// An already active enrollment is returned unchanged. Returns
// ErrBusinessMismatch if the existing enrollment names another business.
func (s *Store) Enroll(ctx context.Context, e ledger.Enrollment) (ledger.Enrollment, error) {
	e.CustomerID = ledger.NormalizeID(e.CustomerID)
	e.ProgramID = ledger.NormalizeID(e.ProgramID)
	e.BusinessID = ledger.NormalizeID(e.BusinessID)

	var out ledger.Enrollment
	err := s.WithTx(ctx, func(tx *Tx) error {
		existing, err := getEnrollment(ctx, tx.tx, e.CustomerID, e.ProgramID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.tx.ExecContext(ctx, `
				INSERT INTO enrollments
				(customer_id, program_id, business_id, status, points_cache, enrolled_at)
				VALUES (?, ?, ?, 'active', 0, ?)
			`, e.CustomerID, e.ProgramID, e.BusinessID, formatTime(e.EnrolledAt))
			if err != nil {
				return fmt.Errorf("insert enrollment: %w", err)
			}
		case err != nil:
			return fmt.Errorf("read enrollment: %w", err)
		case existing.BusinessID != e.BusinessID:
			return fmt.Errorf("enroll %s in %s: %w", e.CustomerID, e.ProgramID, ErrBusinessMismatch)
		case !existing.Active():
			if err := tx.setEnrollmentStatus(ctx, e.CustomerID, e.ProgramID, ledger.EnrollmentActive, e.EnrolledAt); err != nil {
				return err
			}
		}

		out, err = getEnrollment(ctx, tx.tx, e.CustomerID, e.ProgramID)
		if err != nil {
			return fmt.Errorf("reload enrollment: %w", err)
		}
		return nil
	})
	return out, err
}

// SetEnrollmentStatus changes an enrollment's soft status. Deactivation
// also deactivates the active card. Reactivation restores the most recent
// card so the customer keeps their balance. Returns sql.ErrNoRows if the
// enrollment does not exist.
func (s *Store) SetEnrollmentStatus(ctx context.Context, customerID, programID string, status ledger.EnrollmentStatus, at time.Time) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.setEnrollmentStatus(ctx, customerID, programID, status, at)
	})
}

func (t *Tx) setEnrollmentStatus(ctx context.Context, customerID, programID string, status ledger.EnrollmentStatus, at time.Time) error {
	customerID, programID = ledger.NormalizeID(customerID), ledger.NormalizeID(programID)
	if status != ledger.EnrollmentActive && status != ledger.EnrollmentInactive {
		return fmt.Errorf("set enrollment status: invalid status %q", status)
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE enrollments SET status = ? WHERE customer_id = ? AND program_id = ?
	`, string(status), customerID, programID)
	if err != nil {
		return fmt.Errorf("set enrollment status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set enrollment status: rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	if status == ledger.EnrollmentInactive {
		_, err = t.tx.ExecContext(ctx, `
			UPDATE cards SET active = 0, updated_at = ?
			WHERE customer_id = ? AND program_id = ? AND active = 1
		`, formatTime(at), customerID, programID)
		if err != nil {
			return fmt.Errorf("deactivate card: %w", err)
		}
		return nil
	}

	_, err = t.tx.ExecContext(ctx, `
		UPDATE cards SET active = 1, updated_at = ?
		WHERE id = (
			SELECT id FROM cards
			WHERE customer_id = ? AND program_id = ?
			ORDER BY rowid DESC
			LIMIT 1
		)
		AND NOT EXISTS (
			SELECT 1 FROM cards WHERE customer_id = ? AND program_id = ? AND active = 1
		)
	`, formatTime(at), customerID, programID, customerID, programID)
	if err != nil {
		return fmt.Errorf("reactivate card: %w", err)
	}

	// The cache follows whichever card is now active.
	_, err = t.tx.ExecContext(ctx, `
		UPDATE enrollments
		SET points_cache = COALESCE((
			SELECT points FROM cards
			WHERE customer_id = ? AND program_id = ? AND active = 1
		), 0)
		WHERE customer_id = ? AND program_id = ?
	`, customerID, programID, customerID, programID)
	if err != nil {
		return fmt.Errorf("refresh enrollment cache: %w", err)
	}
	return nil
}

// SaveCatalog upserts businesses and programs in one transaction.
// Businesses are written first so program foreign keys resolve.
func (s *Store) SaveCatalog(ctx context.Context, businesses []ledger.Business, programs []ledger.Program, at time.Time) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		for _, b := range businesses {
			_, err := tx.tx.ExecContext(ctx, `
				INSERT INTO businesses (id, name, created_at)
				VALUES (?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name
			`, b.ID, b.Name, formatTime(at))
			if err != nil {
				return fmt.Errorf("upsert business %s: %w", b.ID, err)
			}
		}
		for _, p := range programs {
			tier := p.DefaultTier
			if tier == "" {
				tier = ledger.DefaultTier
			}
			_, err := tx.tx.ExecContext(ctx, `
				INSERT INTO programs (id, business_id, name, default_tier, created_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					business_id = excluded.business_id,
					name = excluded.name,
					default_tier = excluded.default_tier
			`, p.ID, p.BusinessID, p.Name, tier, formatTime(at))
			if err != nil {
				return fmt.Errorf("upsert program %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// RecordLegacyDrift stores the legacy balance columns for an imported card.
// Uses ON CONFLICT DO NOTHING: the first import's record is kept.
func (s *Store) RecordLegacyDrift(ctx context.Context, d LegacyDrift) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO legacy_balance_drift
		(legacy_id, card_id, points, points_balance, total_points_earned, resolved, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(legacy_id) DO NOTHING
	`,
		d.LegacyID,
		d.CardID,
		nullInt(d.Points),
		nullInt(d.PointsBalance),
		nullInt(d.TotalPointsEarned),
		d.Resolved,
		formatTime(d.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("record legacy drift: %w", err)
	}
	return nil
}

// ReadLegacyDrift retrieves the drift record for a legacy id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadLegacyDrift(ctx context.Context, legacyID string) (LegacyDrift, error) {
	var d LegacyDrift
	var points, balance, earned sql.NullInt64
	var recordedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT legacy_id, card_id, points, points_balance, total_points_earned, resolved, recorded_at
		FROM legacy_balance_drift
		WHERE legacy_id = ?
	`, legacyID).Scan(&d.LegacyID, &d.CardID, &points, &balance, &earned, &d.Resolved, &recordedAt)
	if err != nil {
		return LegacyDrift{}, err
	}
	d.Points = fromNullInt(points)
	d.PointsBalance = fromNullInt(balance)
	d.TotalPointsEarned = fromNullInt(earned)
	if d.RecordedAt, err = parseTime(recordedAt); err != nil {
		return LegacyDrift{}, err
	}
	return d, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
