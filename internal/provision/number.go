package provision

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// NumberGenerator produces customer-facing card numbers.
type NumberGenerator interface {
	Next() string
}

// SnowflakeNumbers derives card numbers from snowflake ids, so numbers are
// unique per node without a database round trip.
type SnowflakeNumbers struct {
	node *snowflake.Node
}

// NewSnowflakeNumbers creates a generator for the given node id (0-1023).
// Processes sharing a database must use distinct node ids.
func NewSnowflakeNumbers(nodeID int64) (*SnowflakeNumbers, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeNumbers{node: node}, nil
}

// Next returns a number like "LC-0001-9234-5678-9012-3456".
func (g *SnowflakeNumbers) Next() string {
	return FormatCardNumber(g.node.Generate().Int64())
}

// FormatCardNumber renders n as "LC-" followed by its decimal digits,
// left-padded to a multiple of four and grouped by four.
func FormatCardNumber(n int64) string {
	digits := fmt.Sprintf("%d", n)
	if pad := len(digits) % 4; pad != 0 {
		digits = strings.Repeat("0", 4-pad) + digits
	}

	groups := make([]string, 0, len(digits)/4)
	for i := 0; i < len(digits); i += 4 {
		groups = append(groups, digits[i:i+4])
	}
	return "LC-" + strings.Join(groups, "-")
}
