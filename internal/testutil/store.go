package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/loyalty/internal/ledger"
	"github.com/roach88/loyalty/internal/store"
)

// OpenStore opens a file-backed store in a temp dir, closed at test cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Enroll records an active enrollment at Epoch.
func Enroll(t testing.TB, s *store.Store, customerID, businessID, programID string) {
	t.Helper()
	_, err := s.Enroll(context.Background(), ledger.Enrollment{
		CustomerID: customerID,
		ProgramID:  programID,
		BusinessID: businessID,
		EnrolledAt: Epoch,
	})
	require.NoError(t, err)
}
