package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/loyalty/internal/ledger"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// enrollTest enrolls customer in program for business "biz-1".
func enrollTest(t *testing.T, s *Store, customerID, programID string) {
	t.Helper()
	_, err := s.Enroll(context.Background(), ledger.Enrollment{
		CustomerID: customerID,
		ProgramID:  programID,
		BusinessID: "biz-1",
		EnrolledAt: testTime,
	})
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
}

// createTestCard enrolls the customer and creates an active card with id cardID.
func createTestCard(t *testing.T, s *Store, cardID, customerID, programID string) ledger.Card {
	t.Helper()
	enrollTest(t, s, customerID, programID)

	card := ledger.Card{
		ID:         cardID,
		CustomerID: customerID,
		BusinessID: "biz-1",
		ProgramID:  programID,
		CardNumber: "LC-" + cardID,
		Tier:       ledger.DefaultTier,
		Active:     true,
		CreatedAt:  testTime,
		UpdatedAt:  testTime,
	}
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.CreateCard(context.Background(), card)
	})
	if err != nil {
		t.Fatalf("CreateCard() failed: %v", err)
	}
	return card
}

// testActivity builds an earn record for key with the given delta.
func testActivity(id, key string, delta int64) ledger.Activity {
	return ledger.Activity{
		ID:             id,
		Type:           ledger.ActivityEarn,
		SourceType:     ledger.SourceScan,
		Delta:          delta,
		Description:    "test award",
		IdempotencyKey: key,
		CreatedAt:      testTime,
	}
}
