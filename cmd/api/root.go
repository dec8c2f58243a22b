package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"brucewnd/api/internal/config"
)

// commandContext carries what every subcommand needs once the environment
// is loaded.
type commandContext struct {
	envFile string
	cfg     config.Config
	logger  *slog.Logger
}

func newRootCommand() *cobra.Command {
	cc := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "api",
		Short:         "Brucewnd catalog API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return cc.load(cmd.Flags().Changed("env-file"))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cc)
		},
	}
	rootCmd.PersistentFlags().StringVar(&cc.envFile, "env-file", ".env", "Environment file to load before reading configuration")

	rootCmd.AddCommand(newServeCommand(cc))
	rootCmd.AddCommand(newMigrateCommand(cc))
	return rootCmd
}

// load reads the env file, then the configuration. A missing default env
// file is fine; a missing file the user named is not.
func (cc *commandContext) load(explicit bool) error {
	if err := godotenv.Load(cc.envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", cc.envFile, err)
		}
	}
	cc.cfg = config.Load()
	cc.logger = newLogger(cc.cfg.LogLevel, cc.cfg.LogFormat)
	slog.SetDefault(cc.logger)
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
