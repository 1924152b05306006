package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/loyalty/internal/api"
	"github.com/roach88/loyalty/internal/notify"
	"github.com/roach88/loyalty/internal/reconcile"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over HTTP",
		Long: `Start the HTTP API. Change events are delivered asynchronously to the
log and, when configured, the webhook. On SIGINT or SIGTERM the server
stops accepting requests, finishes in-flight ones and drains pending
change events.

Example:
  loyalty serve --db ./loyalty.db --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.RootOptions, cfg, true)

	dispatcher := notify.NewDispatcher(changeNotifier(cfg, logger), logger)
	a, err := buildApp(cfg, logger, dispatcher)
	if err != nil {
		return err
	}
	defer a.Close()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	// The dispatcher outlives request contexts; Close drains it after the
	// server has stopped.
	dispatcher.Start(context.WithoutCancel(ctx))
	defer dispatcher.Close()

	srv := api.NewServer(a.engine, reconcile.NewReader(a.store), a.store, api.WithLogger(logger))
	if err := srv.ListenAndServe(ctx, cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
