package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formflow"
	"github.com/goliatone/go-formflow/internal/config"
	"github.com/goliatone/go-formflow/internal/logging"
	"github.com/goliatone/go-formflow/internal/prompt"
	"github.com/goliatone/go-formflow/pkg/versioning"
)

// app carries state shared by every subcommand of one invocation.
type app struct {
	loadConfig func() (config.Config, error)
	newDriver  func(cmd *cobra.Command) prompt.Driver

	logLevel string
	cfg      config.Config
	logger   *slog.Logger

	engine     *formflow.Engine
	closeStore func() error
}

func newApp() *app {
	return &app{
		loadConfig: config.Load,
		newDriver: func(cmd *cobra.Command) prompt.Driver {
			return prompt.NewSurveyDriver(cmd.OutOrStdout())
		},
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	logger, err := logging.New(cmd.ErrOrStderr(), logging.Options{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: "formflow",
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// engineFor opens the configured store on first use.
func (a *app) engineFor(ctx context.Context) (*formflow.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	store, closeStore, err := a.cfg.OpenStore(ctx, a.logger)
	if err != nil {
		return nil, err
	}
	a.closeStore = closeStore
	a.engine = formflow.New(
		formflow.WithStore(store),
		formflow.WithLogger(a.logger),
		formflow.WithAutoSaveInterval(a.cfg.AutoSaveInterval),
		formflow.WithLowConfidenceThreshold(a.cfg.LowConfidenceThreshold),
		formflow.WithSaveErrorHandler(func(err error) {
			a.logger.Error("autosave failed", "error", err)
		}),
	)
	return a.engine, nil
}

// restore loads the stored history of templateID into the engine's version
// manager. A template with no history is not an error.
func (a *app) restore(ctx context.Context, templateID string) (*formflow.Engine, error) {
	engine, err := a.engineFor(ctx)
	if err != nil {
		return nil, err
	}
	if err := engine.Versions().Restore(ctx, templateID); err != nil && !errors.Is(err, versioning.ErrTemplateNotFound) {
		return nil, err
	}
	return engine, nil
}

func (a *app) teardown() error {
	if a.closeStore == nil {
		return nil
	}
	err := a.closeStore()
	a.closeStore = nil
	a.engine = nil
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "formflow",
		Short:         "Lint, version and fill form templates",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override FORMFLOW_LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newLintCmd(a),
		newFillCmd(a),
		newVersionsCmd(a),
		newImportOpenAPICmd(a),
		newWatchCmd(a),
	)
	return root
}
