package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/loyalty/internal/legacy"
)

// NewImportLegacyCommand creates the import-legacy command.
func NewImportLegacyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-legacy <file.yaml>",
		Short: "Import card balances from the previous system",
		Long: `Import legacy card rows. Each row is reconciled to one balance
(points, else points_balance, else 0; negatives clamp to 0), the raw
columns are kept for review, and the balance is credited as an ADJUSTMENT
keyed "legacy-import:<id>". Running the same file again changes nothing.

Example file:

  cards:
    - id: L-100
      customer: cust-1
      business: biz-1
      program: prog-1
      points: 120
      points_balance: 100
      total_points_earned: 300

Example:
  loyalty import-legacy ./legacy.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportLegacy(rootOpts, args[0], cmd)
		},
	}
}

func runImportLegacy(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := formatter(cmd, opts)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("legacy file not found: %s", path))
	}

	records, err := legacy.LoadFile(path)
	if err != nil {
		return out.Fail(ExitCommandError, "E_LEGACY_INVALID", err.Error(), nil)
	}

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	imp := legacy.NewImporter(a.store, a.engine, legacy.WithLogger(a.logger))
	sum, err := imp.Import(cmd.Context(), records)
	if err != nil {
		return out.Fail(ExitFailure, "E_IMPORT_FAILED", err.Error(), sum)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Imported %d card(s), %d already imported, %d with drift", sum.Imported, sum.Duplicate, sum.Drifted)
	for _, o := range sum.Outcomes {
		if len(o.Drift) == 0 && !o.Clamped {
			continue
		}
		fmt.Fprintf(&b, "\n  %s: resolved %d from %s", o.LegacyID, o.Points, o.Source)
		if len(o.Drift) > 0 {
			fmt.Fprintf(&b, ", drift in %s", strings.Join(o.Drift, ", "))
		}
		if o.Clamped {
			b.WriteString(", clamped to 0")
		}
	}
	return out.Success(sum, b.String())
}
