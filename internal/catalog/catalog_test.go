package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loyalty/internal/ledger"
)

const validCatalog = `
business: "corner-cafe": name: "Corner Cafe"
business: "book-nook": name:   "Book Nook"

program: "coffee-club": {
	business:     "corner-cafe"
	name:         "Coffee Club"
	default_tier: "BRONZE"
}
program: "readers": {
	business: "book-nook"
	name:     "Readers Rewards"
}
`

func TestParse_Valid(t *testing.T) {
	cat, err := Parse("catalog.cue", []byte(validCatalog))
	require.NoError(t, err)

	assert.Equal(t, []ledger.Business{
		{ID: "book-nook", Name: "Book Nook"},
		{ID: "corner-cafe", Name: "Corner Cafe"},
	}, cat.Businesses)
	assert.Equal(t, []ledger.Program{
		{ID: "coffee-club", BusinessID: "corner-cafe", Name: "Coffee Club", DefaultTier: "BRONZE"},
		{ID: "readers", BusinessID: "book-nook", Name: "Readers Rewards", DefaultTier: ledger.DefaultTier},
	}, cat.Programs)
}

func TestParse_UnknownBusiness(t *testing.T) {
	src := `
business: "corner-cafe": name: "Corner Cafe"
program: "p1": {
	business: "ghost"
	name:     "Ghost Program"
}
`
	_, err := Parse("catalog.cue", []byte(src))
	var le *LoadError
	require.True(t, errors.As(err, &le), "expected LoadError, got %v", err)
	assert.Equal(t, "program.p1.business", le.Field)
	assert.Contains(t, le.Message, "ghost")
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty business name", `business: "b1": name: ""`},
		{"missing program name", "business: b1: name: \"B\"\nprogram: p1: business: \"b1\""},
		{"lowercase tier", "business: b1: name: \"B\"\nprogram: p1: {business: \"b1\", name: \"P\", default_tier: \"gold\"}"},
		{"bad id", `business: "Bad ID": name: "B"`},
		{"unknown field", `business: b1: {name: "B", colour: "red"}`},
		{"syntax error", `business: {`},
		{"unknown top-level field", `businesses: b1: name: "B"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("catalog.cue", []byte(tt.src))
			var le *LoadError
			assert.True(t, errors.As(err, &le), "expected LoadError, got %v", err)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("catalog.cue", []byte(""))
	assert.ErrorContains(t, err, "no businesses or programs")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.cue")
	require.NoError(t, os.WriteFile(path, []byte(validCatalog), 0o644))

	cat, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, cat.Programs, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.cue"))
	assert.ErrorContains(t, err, "reading catalog")
}
