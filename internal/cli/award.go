package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/loyalty/internal/ledger"
)

// AwardOptions holds flags for the award command.
type AwardOptions struct {
	*RootOptions
	Request ledger.AwardRequest
	Source  string
}

// NewAwardCommand creates the award command.
func NewAwardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AwardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "award",
		Short: "Credit points to a customer's card",
		Long: `Credit points to the customer's card in a program, provisioning the card
on first award. The idempotency key makes the command safe to repeat: a
replay reports the balance of the original award.

Administrative corrections use --source ADJUSTMENT.

Exit codes:
  0 - Award applied or replayed
  1 - Award rejected (not enrolled, invalid amount, key reused, conflict)
  2 - Command error (missing flags, database not openable)

Examples:
  loyalty award --customer cust-1 --business biz-1 --program prog-1 --points 10 --key order-1001
  loyalty award --customer cust-1 --business biz-1 --program prog-1 --points 25 --source ADJUSTMENT --key fix-42 --description "store credit"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAward(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Request.CustomerID, "customer", "", "customer id")
	cmd.Flags().StringVar(&opts.Request.BusinessID, "business", "", "business id")
	cmd.Flags().StringVar(&opts.Request.ProgramID, "program", "", "program id")
	cmd.Flags().Int64Var(&opts.Request.Points, "points", 0, "points to award (> 0)")
	cmd.Flags().StringVar(&opts.Source, "source", string(ledger.SourceManual), "source type (SCAN|MANUAL|PROMO|ADJUSTMENT)")
	cmd.Flags().StringVar(&opts.Request.Description, "description", "", "activity description")
	cmd.Flags().StringVar(&opts.Request.IdempotencyKey, "key", "", "idempotency key")

	return cmd
}

func runAward(opts *AwardOptions, cmd *cobra.Command) error {
	out := formatter(cmd, opts.RootOptions)

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	req := opts.Request
	req.SourceType = ledger.SourceType(opts.Source)

	res, err := a.engine.Award(cmd.Context(), req)
	if err != nil {
		return out.FailAward(err)
	}

	text := fmt.Sprintf("Awarded %d points to card %s (balance %d)", req.Points, res.CardID, res.NewBalance)
	if res.Duplicate {
		text = fmt.Sprintf("Already applied: card %s balance %d", res.CardID, res.NewBalance)
	}
	return out.Success(res, text)
}
