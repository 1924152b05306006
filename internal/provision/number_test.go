package provision

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCardNumber(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "LC-0000"},
		{42, "LC-0042"},
		{12345678, "LC-1234-5678"},
		{1234567890123456789, "LC-0123-4567-8901-2345-6789"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCardNumber(tt.in))
	}
}

func TestSnowflakeNumbers_Unique(t *testing.T) {
	g, err := NewSnowflakeNumbers(1)
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^LC(-\d{4})+$`)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		n := g.Next()
		require.Regexp(t, pattern, n)
		require.False(t, seen[n], "duplicate card number %s", n)
		seen[n] = true
	}
}

func TestNewSnowflakeNumbers_InvalidNode(t *testing.T) {
	_, err := NewSnowflakeNumbers(4096)
	assert.Error(t, err)
}
