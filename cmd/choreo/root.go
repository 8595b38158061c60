package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/choreo"
)

// rootOptions holds global flags and the resolved configuration shared by
// all commands.
type rootOptions struct {
	ConfigPath string
	Backend    string
	LogLevel   string

	cfg    choreo.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "choreo",
		Short:         "Choreographed routing-slip pipeline",
		Long:          "Step workers self-select work from a shared change feed. There is no central dispatcher.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "store backend (memory|redis|postgres)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	cmd.AddCommand(newWorkerCommand(opts))
	cmd.AddCommand(newSubmitCommand(opts))
	cmd.AddCommand(newThrottleCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))

	return cmd
}

// load resolves the configuration file, flag overrides, and logger.
func (o *rootOptions) load(cmd *cobra.Command) error {
	level, err := parseLevel(o.LogLevel)
	if err != nil {
		return err
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(o.logger)

	path := o.ConfigPath
	if path == "" {
		path = os.Getenv("CHOREO_CONFIG")
	}
	cfg, err := choreo.LoadConfig(path)
	if err != nil {
		return err
	}
	if o.Backend != "" {
		cfg.Backend = o.Backend
	}
	o.cfg = cfg
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
	}
}
