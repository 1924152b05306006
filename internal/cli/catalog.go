package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/loyalty/internal/catalog"
)

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage businesses and programs",
	}
	cmd.AddCommand(newCatalogLoadCommand(rootOpts))
	return cmd
}

func newCatalogLoadCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file.cue>",
		Short: "Validate a CUE catalog and save it to the ledger",
		Long: `Validate a catalog of businesses and programs written in CUE and upsert it.

Example catalog:

  business: "biz-1": name: "Corner Coffee"
  program: "prog-1": {
      business:     "biz-1"
      name:         "Coffee Stamps"
      default_tier: "BRONZE"
  }

Example:
  loyalty catalog load ./catalog.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogLoad(opts, args[0], cmd)
		},
	}
}

func runCatalogLoad(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := formatter(cmd, opts)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("catalog file not found: %s", path))
	}

	cat, err := catalog.LoadFile(path)
	if err != nil {
		var le *catalog.LoadError
		if errors.As(err, &le) {
			return out.Fail(ExitCommandError, "E_CATALOG_INVALID", le.Error(), map[string]string{"field": le.Field})
		}
		return out.Fail(ExitCommandError, "E_CATALOG_INVALID", err.Error(), nil)
	}

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.SaveCatalog(cmd.Context(), cat.Businesses, cat.Programs, time.Now().UTC()); err != nil {
		return WrapExitError(ExitFailure, "failed to save catalog", err)
	}

	return out.Success(map[string]int{
		"businesses": len(cat.Businesses),
		"programs":   len(cat.Programs),
	}, fmt.Sprintf("Catalog loaded: %d business(es), %d program(s)", len(cat.Businesses), len(cat.Programs)))
}
