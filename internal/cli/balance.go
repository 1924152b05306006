package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/loyalty/internal/reconcile"
)

// BalanceOptions holds flags for the balance and history commands.
type BalanceOptions struct {
	*RootOptions
	Customer string
	Program  string
	Limit    int
}

func (o *BalanceOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Customer, "customer", "", "customer id (required)")
	cmd.Flags().StringVar(&o.Program, "program", "", "program id (required)")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("program")
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BalanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a customer's card balance in a program",
		Long: `Show the active card for a customer in a program. The balance is the
card's points; no other stored value is consulted.

Example:
  loyalty balance --customer cust-1 --program prog-1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(opts, cmd)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func runBalance(opts *BalanceOptions, cmd *cobra.Command) error {
	out := formatter(cmd, opts.RootOptions)

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	bal, err := reconcile.NewReader(a.store).Balance(cmd.Context(), opts.Customer, opts.Program)
	if errors.Is(err, reconcile.ErrCardNotFound) {
		return out.Fail(ExitFailure, "CardNotFound",
			fmt.Sprintf("no active card for customer %s in program %s", opts.Customer, opts.Program), nil)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read balance", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Card %s (%s)\n", bal.CardID, bal.CardNumber)
	fmt.Fprintf(&b, "  Points: %d\n", bal.Points)
	fmt.Fprintf(&b, "  Tier:   %s", bal.Tier)
	if bal.ProgramName != "" {
		fmt.Fprintf(&b, "\n  Program: %s (%s)", bal.ProgramName, bal.BusinessName)
	}
	return out.Success(bal, b.String())
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BalanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List activity records on a customer's card",
		Long: `List the activity records of the customer's active card, newest first.

Example:
  loyalty history --customer cust-1 --program prog-1 --limit 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum records to show (0 for all)")
	return cmd
}

func runHistory(opts *BalanceOptions, cmd *cobra.Command) error {
	out := formatter(cmd, opts.RootOptions)
	if opts.Limit < 0 {
		return out.Fail(ExitCommandError, "E_INVALID_FLAG", "--limit must not be negative", nil)
	}

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	card, err := a.store.GetActiveCard(ctx, opts.Customer, opts.Program)
	if errors.Is(err, sql.ErrNoRows) {
		return out.Fail(ExitFailure, "CardNotFound",
			fmt.Sprintf("no active card for customer %s in program %s", opts.Customer, opts.Program), nil)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read card", err)
	}

	acts, err := a.store.ListActivity(ctx, card.ID, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read activity", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Card %s: %d points, %d record(s)", card.ID, card.Points, len(acts))
	for _, act := range acts {
		fmt.Fprintf(&b, "\n  %s  %-6s %-10s %+6d  -> %-6d %s",
			act.CreatedAt.Format("2006-01-02 15:04:05"), act.Type, act.SourceType, act.Delta, act.BalanceAfter, act.IdempotencyKey)
	}
	return out.Success(map[string]any{"card": card, "activities": acts}, b.String())
}
