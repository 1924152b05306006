package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/loyalty/internal/ledger"
	"github.com/roach88/loyalty/internal/store"
)

// EnrollOptions holds flags for the enroll and unenroll commands.
type EnrollOptions struct {
	*RootOptions
	Customer string
	Business string
	Program  string
}

// NewEnrollCommand creates the enroll command.
func NewEnrollCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnrollOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enroll a customer in a program",
		Long: `Enroll a customer in a business's program. Enrolling again is a no-op;
enrolling an inactive customer reactivates them and restores their card.

Example:
  loyalty enroll --customer cust-1 --business biz-1 --program prog-1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnroll(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Customer, "customer", "", "customer id (required)")
	cmd.Flags().StringVar(&opts.Business, "business", "", "business id (required)")
	cmd.Flags().StringVar(&opts.Program, "program", "", "program id (required)")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("business")
	_ = cmd.MarkFlagRequired("program")

	return cmd
}

func runEnroll(opts *EnrollOptions, cmd *cobra.Command) error {
	out := formatter(cmd, opts.RootOptions)

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	enr, err := a.store.Enroll(cmd.Context(), ledger.Enrollment{
		CustomerID: opts.Customer,
		ProgramID:  opts.Program,
		BusinessID: opts.Business,
		EnrolledAt: time.Now().UTC(),
	})
	if errors.Is(err, store.ErrBusinessMismatch) {
		return out.Fail(ExitFailure, "BusinessMismatch",
			fmt.Sprintf("customer %s is enrolled in program %s under another business", opts.Customer, opts.Program), nil)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to enroll", err)
	}

	return out.Success(enr, fmt.Sprintf("Customer %s enrolled in program %s (%s)", enr.CustomerID, enr.ProgramID, enr.Status))
}

// NewUnenrollCommand creates the unenroll command.
func NewUnenrollCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnrollOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "unenroll",
		Short: "Deactivate a customer's enrollment",
		Long: `Mark an enrollment inactive and deactivate its card. Nothing is deleted;
the balance is kept and restored by a later enroll.

Example:
  loyalty unenroll --customer cust-1 --program prog-1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnenroll(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Customer, "customer", "", "customer id (required)")
	cmd.Flags().StringVar(&opts.Program, "program", "", "program id (required)")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("program")

	return cmd
}

func runUnenroll(opts *EnrollOptions, cmd *cobra.Command) error {
	out := formatter(cmd, opts.RootOptions)

	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.store.SetEnrollmentStatus(cmd.Context(), opts.Customer, opts.Program, ledger.EnrollmentInactive, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return out.Fail(ExitFailure, "EnrollmentNotFound",
			fmt.Sprintf("customer %s is not enrolled in program %s", opts.Customer, opts.Program), nil)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to unenroll", err)
	}

	return out.Success(map[string]string{
		"customerId": opts.Customer,
		"programId":  opts.Program,
		"status":     string(ledger.EnrollmentInactive),
	}, fmt.Sprintf("Customer %s unenrolled from program %s", opts.Customer, opts.Program))
}
