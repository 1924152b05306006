package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/loyalty/internal/ledger"
)

const cardColumns = `id, customer_id, business_id, program_id, card_number, tier, points, active, created_at, updated_at`

const activityColumns = `id, card_id, type, source_type, delta, balance_after, description, idempotency_key, created_at`

// CardView is an active card joined with its catalog names.
// Names are empty when the catalog has no entry.
type CardView struct {
	Card         ledger.Card
	ProgramName  string
	BusinessName string
}

// LedgerTotals compares one card's stored balance with what its activity log
// and enrollment cache say. Used by the audit.
type LedgerTotals struct {
	CardID      string
	CustomerID  string
	ProgramID   string
	Active      bool
	Points      int64
	ActivitySum int64
	PointsCache int64
	HasEnrolled bool
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (ledger.Card, error) {
	var c ledger.Card
	var active int
	var createdAt, updatedAt string
	if err := row.Scan(
		&c.ID, &c.CustomerID, &c.BusinessID, &c.ProgramID, &c.CardNumber,
		&c.Tier, &c.Points, &active, &createdAt, &updatedAt,
	); err != nil {
		return ledger.Card{}, err
	}
	c.Active = active == 1

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Card{}, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ledger.Card{}, err
	}
	return c, nil
}

func scanActivity(row rowScanner) (ledger.Activity, error) {
	var a ledger.Activity
	var typ, source, createdAt string
	if err := row.Scan(
		&a.ID, &a.CardID, &typ, &source, &a.Delta, &a.BalanceAfter,
		&a.Description, &a.IdempotencyKey, &createdAt,
	); err != nil {
		return ledger.Activity{}, err
	}
	a.Type = ledger.ActivityType(typ)
	a.SourceType = ledger.SourceType(source)

	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Activity{}, err
	}
	return a, nil
}

func scanEnrollment(row rowScanner) (ledger.Enrollment, error) {
	var e ledger.Enrollment
	var status, enrolledAt string
	var lastActivity sql.NullString
	if err := row.Scan(
		&e.CustomerID, &e.ProgramID, &e.BusinessID, &status,
		&e.PointsCache, &enrolledAt, &lastActivity,
	); err != nil {
		return ledger.Enrollment{}, err
	}
	e.Status = ledger.EnrollmentStatus(status)

	var err error
	if e.EnrolledAt, err = parseTime(enrolledAt); err != nil {
		return ledger.Enrollment{}, err
	}
	if lastActivity.Valid {
		if e.LastActivityAt, err = parseTime(lastActivity.String); err != nil {
			return ledger.Enrollment{}, err
		}
	}
	return e, nil
}

// getCard returns sql.ErrNoRows if no card has the id.
func getCard(ctx context.Context, q querier, id string) (ledger.Card, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE id = ?
	`, id)
	return scanCard(row)
}

// getActiveCard returns sql.ErrNoRows if the enrollment has no active card.
func getActiveCard(ctx context.Context, q querier, customerID, programID string) (ledger.Card, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE customer_id = ? AND program_id = ? AND active = 1
	`, customerID, programID)
	return scanCard(row)
}

// getEnrollment returns sql.ErrNoRows if the customer never enrolled.
func getEnrollment(ctx context.Context, q querier, customerID, programID string) (ledger.Enrollment, error) {
	row := q.QueryRowContext(ctx, `
		SELECT customer_id, program_id, business_id, status, points_cache, enrolled_at, last_activity_at
		FROM enrollments
		WHERE customer_id = ? AND program_id = ?
	`, customerID, programID)
	return scanEnrollment(row)
}

// getProgram returns sql.ErrNoRows if the catalog has no such program.
func getProgram(ctx context.Context, q querier, id string) (ledger.Program, error) {
	var p ledger.Program
	err := q.QueryRowContext(ctx, `
		SELECT id, business_id, name, default_tier
		FROM programs
		WHERE id = ?
	`, id).Scan(&p.ID, &p.BusinessID, &p.Name, &p.DefaultTier)
	if err != nil {
		return ledger.Program{}, err
	}
	return p, nil
}

// findActivity returns sql.ErrNoRows if the key was never claimed.
func findActivity(ctx context.Context, q querier, idempotencyKey string) (ledger.Activity, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE idempotency_key = ?
	`, idempotencyKey)
	return scanActivity(row)
}

// GetCard retrieves a card by id. Returns sql.ErrNoRows if not found.
func (s *Store) GetCard(ctx context.Context, id string) (ledger.Card, error) {
	return getCard(ctx, s.db, id)
}

// GetActiveCard retrieves the active card for an enrollment.
// Returns sql.ErrNoRows if none exists.
func (s *Store) GetActiveCard(ctx context.Context, customerID, programID string) (ledger.Card, error) {
	return getActiveCard(ctx, s.db, ledger.NormalizeID(customerID), ledger.NormalizeID(programID))
}

// GetEnrollment retrieves an enrollment of any status.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetEnrollment(ctx context.Context, customerID, programID string) (ledger.Enrollment, error) {
	return getEnrollment(ctx, s.db, ledger.NormalizeID(customerID), ledger.NormalizeID(programID))
}

// GetProgram retrieves a catalog program. Returns sql.ErrNoRows if not found.
func (s *Store) GetProgram(ctx context.Context, id string) (ledger.Program, error) {
	return getProgram(ctx, s.db, id)
}

// FindActivity retrieves the activity that claimed an idempotency key.
// Returns sql.ErrNoRows if the key is unused.
func (s *Store) FindActivity(ctx context.Context, idempotencyKey string) (ledger.Activity, error) {
	return findActivity(ctx, s.db, idempotencyKey)
}

// GetCardView retrieves the active card for an enrollment with its program
// and business names. Returns sql.ErrNoRows if there is no active card.
func (s *Store) GetCardView(ctx context.Context, customerID, programID string) (CardView, error) {
	customerID, programID = ledger.NormalizeID(customerID), ledger.NormalizeID(programID)
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.customer_id, c.business_id, c.program_id, c.card_number, c.tier,
		       c.points, c.active, c.created_at, c.updated_at,
		       COALESCE(p.name, ''), COALESCE(b.name, '')
		FROM cards c
		LEFT JOIN programs p ON p.id = c.program_id
		LEFT JOIN businesses b ON b.id = c.business_id
		WHERE c.customer_id = ? AND c.program_id = ? AND c.active = 1
	`, customerID, programID)

	var v CardView
	var active int
	var createdAt, updatedAt string
	c := &v.Card
	if err := row.Scan(
		&c.ID, &c.CustomerID, &c.BusinessID, &c.ProgramID, &c.CardNumber, &c.Tier,
		&c.Points, &active, &createdAt, &updatedAt,
		&v.ProgramName, &v.BusinessName,
	); err != nil {
		return CardView{}, err
	}
	c.Active = active == 1

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return CardView{}, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return CardView{}, err
	}
	return v, nil
}

// ListActivity returns up to limit activity records for a card, most recent
// first. A limit <= 0 returns all records.
func (s *Store) ListActivity(ctx context.Context, cardID string, limit int) ([]ledger.Activity, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE card_id = ?
		ORDER BY rowid DESC
		LIMIT ?
	`, cardID, limit)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	activities := []ledger.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return activities, nil
}

// CountCards returns how many cards, active or not, exist for an enrollment.
func (s *Store) CountCards(ctx context.Context, customerID, programID string) (int, error) {
	customerID, programID = ledger.NormalizeID(customerID), ledger.NormalizeID(programID)
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cards WHERE customer_id = ? AND program_id = ?
	`, customerID, programID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return n, nil
}

// CountActivities returns how many activity records a card has.
func (s *Store) CountActivities(ctx context.Context, cardID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM activities WHERE card_id = ?
	`, cardID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return n, nil
}

// ListLedgerTotals returns, for every card, its stored balance, the sum of
// its activity deltas and its enrollment cache.
// Ordered by customer, program, card id.
func (s *Store) ListLedgerTotals(ctx context.Context) ([]LedgerTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.customer_id, c.program_id, c.active, c.points,
		       COALESCE((SELECT SUM(a.delta) FROM activities a WHERE a.card_id = c.id), 0),
		       COALESCE(e.points_cache, 0),
		       e.customer_id IS NOT NULL
		FROM cards c
		LEFT JOIN enrollments e
		       ON e.customer_id = c.customer_id AND e.program_id = c.program_id
		ORDER BY c.customer_id, c.program_id, c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query ledger totals: %w", err)
	}
	defer rows.Close()

	totals := []LedgerTotals{}
	for rows.Next() {
		var t LedgerTotals
		var active, enrolled int
		if err := rows.Scan(
			&t.CardID, &t.CustomerID, &t.ProgramID, &active, &t.Points,
			&t.ActivitySum, &t.PointsCache, &enrolled,
		); err != nil {
			return nil, fmt.Errorf("scan ledger totals: %w", err)
		}
		t.Active = active == 1
		t.HasEnrolled = enrolled == 1
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger totals: %w", err)
	}
	return totals, nil
}
