package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/loyalty/internal/award"
	"github.com/roach88/loyalty/internal/config"
	"github.com/roach88/loyalty/internal/notify"
	"github.com/roach88/loyalty/internal/provision"
	"github.com/roach88/loyalty/internal/store"
)

// app is the runtime shared by commands that touch the ledger.
type app struct {
	cfg    *config.Config
	store  *store.Store
	engine *award.Engine
	logger *slog.Logger
}

// loadConfig loads the config file and environment, then applies flags.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}
	return cfg, nil
}

// newLogger builds the slog logger. --verbose forces debug level.
func newLogger(w io.Writer, opts *RootOptions, cfg *config.Config, asJSON bool) *slog.Logger {
	level := cfg.Log.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// formatter returns the output formatter for a command.
func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
}

// openApp loads config and opens the ledger with a text logger on stderr.
func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), opts, cfg, false)
	return buildApp(cfg, logger, changeNotifier(cfg, logger))
}

// buildApp opens the store and wires the award engine to sink.
func buildApp(cfg *config.Config, logger *slog.Logger, sink notify.Notifier) (*app, error) {
	logger.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path, store.WithBusyTimeout(cfg.Database.BusyTimeout))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	numbers, err := provision.NewSnowflakeNumbers(cfg.Cards.Node)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "invalid cards.node", err)
	}
	prov := provision.New(numbers, provision.WithLogger(logger))

	eng := award.New(st, prov,
		award.WithNotifier(sink),
		award.WithLogger(logger),
		award.WithMaxAttempts(cfg.Award.MaxAttempts),
		award.WithBackoff(cfg.Award.Backoff),
		award.WithTimeout(cfg.Award.Timeout),
	)

	return &app{
		cfg:    cfg,
		store:  st,
		engine: eng,
		logger: logger,
	}, nil
}

// changeNotifier logs every change event and posts it to the webhook
// when one is configured.
func changeNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	sinks := notify.Multi{notify.Log{Logger: logger}}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, notify.NewWebhook(notify.WebhookConfig{
			URL:        cfg.Webhook.URL,
			Secret:     cfg.Webhook.Secret,
			MaxRetries: cfg.Webhook.MaxRetries,
			RetryDelay: cfg.Webhook.RetryDelay,
			MaxHistory: cfg.Webhook.MaxHistory,
			Logger:     logger,
		}))
	}
	return sinks
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}
