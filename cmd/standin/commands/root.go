// Package commands implements the standin CLI commands using cobra.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/standinhq/standin/pkg/standin/assist"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "standin",
		Short: "standin - WhatsApp stand-in assistant",
		Long: `standin answers your WhatsApp messages while you are away.
It connects to your account, and when you mark yourself unavailable it
replies to direct messages with an LLM-generated response, keeping a
per-sender conversation transcript.

Examples:
  standin serve
  standin serve --config ./standin.yaml
  standin history list
  standin history show 5511999999999
  standin history clear 5511999999999`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newHistoryCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// resolveConfig loads config from the --config flag or conventional
// locations, falling back to defaults plus environment overrides.
func resolveConfig(cmd *cobra.Command) (*assist.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := assist.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := assist.FindConfigFile(); found != "" {
		cfg, err := assist.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	cfg := assist.DefaultConfig()
	cfg.ApplyEnv()
	return cfg, nil
}

// newLogger builds the process logger from config and the --verbose flag.
func newLogger(cmd *cobra.Command, cfg *assist.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

// openStore creates the transcript store selected by config.
func openStore(cfg *assist.Config) (assist.Store, func(), error) {
	switch cfg.Store.Backend {
	case "", "file":
		store, err := assist.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "sqlite":
		store, err := assist.NewSQLiteStore(cfg.Store.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
