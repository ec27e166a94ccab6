package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/ledger/internal/asset"
	"github.com/roach88/ledger/internal/commit"
	"github.com/roach88/ledger/internal/config"
	"github.com/roach88/ledger/internal/journal"
	"github.com/roach88/ledger/internal/logging"
	"github.com/roach88/ledger/internal/metrics"
	"github.com/roach88/ledger/internal/store"
)

// App is the wired component graph one command runs against.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *store.Store
	Finalizer    *asset.Finalizer
	Orchestrator *commit.Orchestrator

	// Journal is nil when the journal is disabled.
	Journal *journal.Journal

	registry *prometheus.Registry
}

// openApp loads configuration and wires the store, finalizer,
// orchestrator and journal. Callers must Close the App.
func openApp(opts *RootOptions, cmd *cobra.Command) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	logCfg := cfg.Log
	if opts.Verbose {
		logCfg.Level = "debug"
	}
	logger := logging.NewWithWriter(logCfg, cmd.ErrOrStderr())

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	app := &App{Config: cfg, Logger: logger, registry: reg}

	storeOpts := []store.Option{store.WithLogger(logger), store.WithMetrics(rec)}
	if !cfg.Journal.Disabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		app.Journal = j
		storeOpts = append(storeOpts, store.WithChangeSink(j))
	}

	app.Store = store.New(cfg.StoreOptions(), storeOpts...)
	app.Finalizer = asset.New(cfg.AssetOptions(), asset.WithLogger(logger), asset.WithMetrics(rec))
	app.Orchestrator = commit.New(app.Store, app.Finalizer, cfg.CommitOptions(),
		commit.WithLogger(logger), commit.WithMetrics(rec))
	return app, nil
}

// Close writes the metrics textfile, when configured, and closes the
// journal.
func (a *App) Close() error {
	var errs []error
	if path := a.Config.Metrics.Textfile; path != "" {
		if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}

// withApp opens the App, runs fn and closes the App. A Close failure is
// logged; fn's error wins.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(*App) error) error {
	app, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			app.Logger.Warn("shutdown failed", "error", cerr)
		}
	}()
	return fn(app)
}

// formatter builds the Printer for cmd.
func formatter(opts *RootOptions, cmd *cobra.Command) *Printer {
	return &Printer{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// fail reports a coded failure through the formatter and returns an
// ExitFailure error carrying it.
func fail(out *Printer, code, message string) error {
	if err := out.Report(code, message, nil); err != nil {
		return err
	}
	return reported(code + ": " + message)
}

// failErr reports err with its ledger error code.
func failErr(out *Printer, err error) error {
	return fail(out, commit.CodeOf(err), commit.MessageOf(err))
}
