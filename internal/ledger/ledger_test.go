package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSourceType(t *testing.T) {
	tests := []struct {
		in      string
		want    SourceType
		wantErr bool
	}{
		{"SCAN", SourceScan, false},
		{"scan", SourceScan, false},
		{" Manual ", SourceManual, false},
		{"promo", SourcePromo, false},
		{"ADJUSTMENT", SourceAdjustment, false},
		{"refund", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSourceType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActivityTypeFor(t *testing.T) {
	assert.Equal(t, ActivityAdjust, ActivityTypeFor(SourceAdjustment))
	assert.Equal(t, ActivityEarn, ActivityTypeFor(SourceScan))
	assert.Equal(t, ActivityEarn, ActivityTypeFor(SourceManual))
	assert.Equal(t, ActivityEarn, ActivityTypeFor(SourcePromo))
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "cust-1", NormalizeID("  cust-1\t"))
	assert.Equal(t, "cust 1", NormalizeID("cust 1"))
	assert.Equal(t, "", NormalizeID("   "))
}

func TestMarshalCanonical_SortsKeysAndSkipsHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"b": int64(2),
		"a": "<x & y>",
		"c": []any{true, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<x & y>","b":2,"c":[true,1]}`, string(got))
}

func TestMarshalCanonical_RejectsFloatsAndNull(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"f": 1.5})
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "é" as e + combining acute accent normalizes to the precomposed form.
	decomposed, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	composed, err := MarshalCanonical("\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestEventID_StableAndKeyed(t *testing.T) {
	id1, err := EventID("tx-1", "card-1")
	require.NoError(t, err)
	id2, err := EventID(" tx-1 ", "card-1")
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "surrounding whitespace must not change the id")
	assert.Len(t, id1, 64)

	other, err := EventID("tx-2", "card-1")
	require.NoError(t, err)
	assert.NotEqual(t, id1, other)

	otherCard, err := EventID("tx-1", "card-2")
	require.NoError(t, err)
	assert.NotEqual(t, id1, otherCard)
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	gen := UUIDv7Generator{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := gen.Generate()
		require.Len(t, id, 36)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
