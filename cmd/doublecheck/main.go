// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

// Command doublecheck runs the double-validation agent services: a manager
// that coordinates the pipeline and the safeguard, processor, and critic
// agents it delegates to.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/doublecheck-agents/doublecheck/a2a"
	"github.com/doublecheck-agents/doublecheck/agent"
	"github.com/doublecheck-agents/doublecheck/config"
	"github.com/doublecheck-agents/doublecheck/model"
	"github.com/doublecheck-agents/doublecheck/server/task"
	"github.com/doublecheck-agents/doublecheck/workflow"
)

var logLevel string

func main() {
	root := &cobra.Command{
		Use:   "doublecheck",
		Short: "Multi-agent query validation pipeline",
		Long: "doublecheck runs a pipeline of cooperating agents: a safeguard screens\n" +
			"user queries, a processor answers them, and a critic rates the answer.\n" +
			"The manager agent coordinates the pipeline and serves the user API.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newAgentCommand("manager", "Run the manager agent", runManager),
		newAgentCommand("safeguard", "Run the safeguard agent", runSafeguard),
		newAgentCommand("processor", "Run the processor agent", runProcessor),
		newAgentCommand("critic", "Run the critic agent", runCritic),
		newAgentCommand("all", "Run all four agents in one process", runAll),
		newQueryCommand(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newAgentCommand builds a serve-style subcommand with signal handling and
// config loading already wired.
func newAgentCommand(use, short string, run func(ctx context.Context, cfg *config.Config, logger *slog.Logger) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			slog.SetDefault(logger)

			cfg, err := config.NewLoader(logger).Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newModelClient builds the shared completion client from config.
func newModelClient(cfg *config.Config, logger *slog.Logger) *model.Client {
	opts := []model.ClientOption{
		model.WithLogger(logger),
		model.WithTemperature(cfg.Model.Temperature),
	}
	if cfg.Model.APIKey != "" {
		opts = append(opts, model.WithAPIKey(cfg.Model.APIKey))
	}
	if cfg.Model.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(cfg.Model.MaxTokens))
	}
	if cfg.Model.Timeout > 0 {
		opts = append(opts, model.WithHTTPClient(&http.Client{Timeout: cfg.Model.Timeout.Duration()}))
	}
	return model.NewClient(cfg.Model.Endpoint, opts...)
}

// newTaskStore opens the configured task store. An empty DSN selects the
// in-memory store; each agent opens its own connection, so running all four
// in one process shares the database file, not the handle.
func newTaskStore(cfg *config.Config) (task.Store, error) {
	if cfg.Storage.DSN == "" {
		return nil, nil
	}

	db, err := gorm.Open(sqlite.Open(cfg.Storage.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open task database %s: %w", cfg.Storage.DSN, err)
	}

	return task.NewDatabaseStore(task.DatabaseStoreConfig{
		DB:          db,
		TableName:   cfg.Storage.Table,
		CreateTable: true,
	})
}

func runSafeguard(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	guard := model.NewGuard(newModelClient(cfg, logger), cfg.Model.Guard)

	store, err := newTaskStore(cfg)
	if err != nil {
		return err
	}
	ag := agent.New(cfg.Safeguard, store, logger)
	ag.RegisterHandler(agent.SafeguardHandler(guard))
	return ag.Serve(ctx)
}

func runProcessor(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	generator := model.NewGenerator(newModelClient(cfg, logger), cfg.Model.Generator)

	store, err := newTaskStore(cfg)
	if err != nil {
		return err
	}
	ag := agent.New(cfg.Processor, store, logger)
	ag.RegisterHandler(agent.ProcessorHandler(generator))
	return ag.Serve(ctx)
}

func runCritic(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	evaluator := model.NewEvaluator(newModelClient(cfg, logger), cfg.Model.Evaluator)

	store, err := newTaskStore(cfg)
	if err != nil {
		return err
	}
	ag := agent.New(cfg.Critic, store, logger)
	ag.RegisterHandler(agent.CriticHandler(evaluator))
	return ag.Serve(ctx)
}

func runManager(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	safeguard, err := a2a.NewClient(cfg.Safeguard.A2AEndpoint())
	if err != nil {
		return fmt.Errorf("safeguard client: %w", err)
	}
	processor, err := a2a.NewClient(cfg.Processor.A2AEndpoint())
	if err != nil {
		return fmt.Errorf("processor client: %w", err)
	}
	critic, err := a2a.NewClient(cfg.Critic.A2AEndpoint())
	if err != nil {
		return fmt.Errorf("critic client: %w", err)
	}

	coordinator := workflow.NewCoordinator(
		safeguard.WithLogger(logger),
		processor.WithLogger(logger),
		critic.WithLogger(logger),
	).WithLogger(logger)

	store, err := newTaskStore(cfg)
	if err != nil {
		return err
	}
	ag := agent.New(cfg.Manager, store, logger)
	ag.RegisterHandler(agent.ManagerHandler(coordinator))
	ag.Handle("/api/query", workflow.QueryHandler(ag.Manager, logger))
	return ag.Serve(ctx)
}

// runAll supervises all four agents in one process. The first agent to
// fail brings the others down.
func runAll(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return runSafeguard(ctx, cfg, logger) })
	g.Go(func() error { return runProcessor(ctx, cfg, logger) })
	g.Go(func() error { return runCritic(ctx, cfg, logger) })
	g.Go(func() error { return runManager(ctx, cfg, logger) })

	return g.Wait()
}
