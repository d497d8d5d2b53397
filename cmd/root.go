// Package cmd implements the proxy's single-command CLI: one
// positional argument naming the TOML config file, default
// "./config.toml".
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reigadegr/cc-proxy-go/internal/config"
	"github.com/reigadegr/cc-proxy-go/internal/server"
	"github.com/reigadegr/cc-proxy-go/internal/stats"
	"github.com/reigadegr/cc-proxy-go/internal/upstream"
)

const (
	AppName = "cc-proxy-go"
	Version = "0.1.0"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:     "cc-proxy [config-path]",
	Short:   "A local-optimizing reverse proxy for the Claude CLI",
	Long:    `Sits in front of an Anthropic-or-OpenAI-Responses-speaking upstream, intercepting probe requests locally and translating everything else.`,
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	RunE:    run,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command. It returns a non-zero process exit
// via os.Exit on any startup failure, per spec.md's CLI contract.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	configPath := "./config.toml"
	if len(args) == 1 {
		configPath = args[0]
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	store := config.NewStore(configPath)

	cfg, err := store.Init()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	selectors := upstream.NewStore(cfg)

	store.OnReload(func(old, next *config.Config) {
		selectors.RebuildIfChanged(old, next)
		logger.Info("config reloaded", "upstreams", len(next.Upstream))
	})

	done := make(chan struct{})
	defer close(done)

	if err := store.StartWatcher(logger, done); err != nil {
		logger.Warn("config file watcher failed to start", "error", err)
	}

	accountant := stats.New()
	srv := server.New(store, selectors, accountant, logger)

	return srv.Start()
}
