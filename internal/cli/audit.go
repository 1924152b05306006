package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/loyalty/internal/reconcile"
)

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check every card against its activity log",
		Long: `Check that each card's points equal the sum of its activity deltas and
that each active card's enrollment cache matches. The audit only reads;
corrections are made with ADJUSTMENT awards.

Exit codes:
  0 - Ledger is consistent
  1 - One or more mismatches found
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(rootOpts, cmd)
		},
	}
}

func runAudit(opts *RootOptions, cmd *cobra.Command) error {
	out := formatter(cmd, opts)

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := reconcile.Audit(cmd.Context(), a.store)
	if err != nil {
		return WrapExitError(ExitFailure, "audit failed", err)
	}

	if !report.Clean() {
		msg := fmt.Sprintf("%d of %d card(s) inconsistent", len(report.Mismatches), report.Cards)
		if !out.JSON() {
			w := cmd.OutOrStdout()
			for _, m := range report.Mismatches {
				fmt.Fprintf(w, "✗ card %s (%s/%s): points=%d activity_sum=%d cache=%d [%s]\n",
					m.CardID, m.CustomerID, m.ProgramID, m.Points, m.ActivitySum, m.PointsCache, strings.Join(m.Kinds, ", "))
			}
		}
		return out.Fail(ExitFailure, "E_AUDIT_MISMATCH", msg, report)
	}

	return out.Success(report, fmt.Sprintf("✓ %d card(s) consistent", report.Cards))
}
