// Package main provides the mshare CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mshare/mshare/internal/app"
	"github.com/mshare/mshare/internal/platform"
	"github.com/mshare/mshare/pkg/config"
)

var version = "dev"

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mshare",
		Short: "Share project files as a browsable tree",
		Long: `mshare ingests files and archives into projects, stores their contents
in blob storage, and renders each project's folder hierarchy.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: $MSHARE_CONFIG or .mshare/config.yaml)")

	rootCmd.AddCommand(
		newMigrateCmd(&configPath),
		newProjectCmd(&configPath),
		newIngestCmd(&configPath),
		newTreeCmd(&configPath),
		newTokenCmd(&configPath),
	)
	return rootCmd
}

// loadConfig resolves the config file from the flag, the environment or the
// nearest .mshare directory, then applies environment overrides.
func loadConfig(flagPath string) (*config.Config, error) {
	path := firstNonEmpty(flagPath, os.Getenv("MSHARE_CONFIG"))
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			path = config.FindConfigFile(cwd)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads config and connects its backends. CLI logs always go to
// stderr so command output stays pipeable.
func openApp(ctx context.Context, flagPath string) (*app.App, *logrus.Logger, error) {
	cfg, err := loadConfig(flagPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := platform.NewLogger(os.Stderr, cfg.Log.Level, "text")
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a, log, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
