// Package provision guarantees a card exists before points are applied.
//
// Ensure runs inside the award transaction, so a card it creates commits or
// rolls back together with the award. Two concurrent first awards cannot
// both create a card: the active-card unique index rejects the second, and
// Ensure answers it with the winner's card.
package provision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/loyalty/internal/ledger"
	"github.com/roach88/loyalty/internal/store"
)

var (
	// ErrEnrollmentRequired reports that the customer has no active
	// enrollment in the program. Provisioning never enrolls.
	ErrEnrollmentRequired = errors.New("enrollment required")

	// ErrBusinessMismatch reports that the program's enrollment belongs to
	// a different business than the request names.
	ErrBusinessMismatch = errors.New("program does not belong to business")
)

// maxNumberAttempts bounds retries on card number collisions.
const maxNumberAttempts = 3

// Ledger is the slice of a store transaction the provisioner needs.
// Satisfied by *store.Tx.
type Ledger interface {
	GetEnrollment(ctx context.Context, customerID, programID string) (ledger.Enrollment, error)
	GetActiveCard(ctx context.Context, customerID, programID string) (ledger.Card, error)
	GetProgram(ctx context.Context, id string) (ledger.Program, error)
	CreateCard(ctx context.Context, card ledger.Card) error
}

// Provisioner creates cards for enrolled customers.
type Provisioner struct {
	ids     ledger.IDGenerator
	numbers NumberGenerator
	clock   ledger.Clock
	logger  *slog.Logger
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithIDGenerator sets the card id generator.
func WithIDGenerator(g ledger.IDGenerator) Option {
	return func(p *Provisioner) {
		p.ids = g
	}
}

// WithClock sets the clock used for card timestamps.
func WithClock(c ledger.Clock) Option {
	return func(p *Provisioner) {
		p.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provisioner) {
		p.logger = l
	}
}

// New creates a Provisioner that draws card numbers from numbers.
func New(numbers NumberGenerator, opts ...Option) *Provisioner {
	p := &Provisioner{
		ids:     ledger.UUIDv7Generator{},
		numbers: numbers,
		clock:   ledger.SystemClock{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ensure returns the active card for (customerID, programID), creating it
// with zero points when the enrollment has none. created reports whether
// this call made the card.
func (p *Provisioner) Ensure(ctx context.Context, q Ledger, customerID, businessID, programID string) (card ledger.Card, created bool, err error) {
	enr, err := q.GetEnrollment(ctx, customerID, programID)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Card{}, false, fmt.Errorf("customer %s in program %s: %w", customerID, programID, ErrEnrollmentRequired)
	}
	if err != nil {
		return ledger.Card{}, false, fmt.Errorf("read enrollment: %w", err)
	}
	if !enr.Active() {
		return ledger.Card{}, false, fmt.Errorf("customer %s in program %s is %s: %w", customerID, programID, enr.Status, ErrEnrollmentRequired)
	}
	if enr.BusinessID != businessID {
		return ledger.Card{}, false, fmt.Errorf("program %s belongs to %s, not %s: %w", programID, enr.BusinessID, businessID, ErrBusinessMismatch)
	}

	card, err = q.GetActiveCard(ctx, customerID, programID)
	if err == nil {
		return card, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ledger.Card{}, false, fmt.Errorf("read card: %w", err)
	}

	tier, err := p.defaultTier(ctx, q, programID)
	if err != nil {
		return ledger.Card{}, false, err
	}

	now := p.clock.Now()
	card = ledger.Card{
		ID:         p.ids.Generate(),
		CustomerID: customerID,
		BusinessID: businessID,
		ProgramID:  programID,
		Tier:       tier,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for attempt := 1; ; attempt++ {
		card.CardNumber = p.numbers.Next()
		err = q.CreateCard(ctx, card)
		if err == nil {
			p.logger.Debug("card provisioned",
				"card_id", card.ID,
				"customer_id", customerID,
				"program_id", programID,
				"tier", tier)
			return card, true, nil
		}

		switch {
		case errors.Is(err, store.ErrDuplicateCard):
			// Another writer created the card first; use theirs.
			existing, lookupErr := q.GetActiveCard(ctx, customerID, programID)
			if lookupErr != nil {
				return ledger.Card{}, false, fmt.Errorf("re-read card after duplicate: %w", lookupErr)
			}
			return existing, false, nil
		case errors.Is(err, store.ErrDuplicateCardNumber) && attempt < maxNumberAttempts:
			p.logger.Warn("card number collision, regenerating",
				"card_number", card.CardNumber,
				"attempt", attempt)
			continue
		default:
			return ledger.Card{}, false, fmt.Errorf("create card: %w", err)
		}
	}
}

// defaultTier returns the program's default tier, or ledger.DefaultTier when
// the program is not in the catalog.
func (p *Provisioner) defaultTier(ctx context.Context, q Ledger, programID string) (string, error) {
	prog, err := q.GetProgram(ctx, programID)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.DefaultTier, nil
	}
	if err != nil {
		return "", fmt.Errorf("read program: %w", err)
	}
	if prog.DefaultTier == "" {
		return ledger.DefaultTier, nil
	}
	return prog.DefaultTier, nil
}
