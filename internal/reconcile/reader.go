package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/loyalty/internal/ledger"
	"github.com/roach88/loyalty/internal/store"
)

// ErrCardNotFound reports that the enrollment has no active card.
var ErrCardNotFound = errors.New("card not found")

// CardViewer reads an active card with its catalog names.
// Satisfied by *store.Store.
type CardViewer interface {
	GetCardView(ctx context.Context, customerID, programID string) (store.CardView, error)
}

// Reader serves balance reads.
type Reader struct {
	src CardViewer
}

// NewReader creates a Reader over src.
func NewReader(src CardViewer) *Reader {
	return &Reader{src: src}
}

// Balance returns the customer's balance in a program.
// Returns ErrCardNotFound if there is no active card.
func (r *Reader) Balance(ctx context.Context, customerID, programID string) (ledger.Balance, error) {
	v, err := r.src.GetCardView(ctx, customerID, programID)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Balance{}, fmt.Errorf("balance %s/%s: %w", customerID, programID, ErrCardNotFound)
	}
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("balance %s/%s: %w", customerID, programID, err)
	}
	return ledger.Balance{
		CardID:       v.Card.ID,
		Points:       Points(v.Card),
		Tier:         v.Card.Tier,
		CardNumber:   v.Card.CardNumber,
		ProgramName:  v.ProgramName,
		BusinessName: v.BusinessName,
	}, nil
}
