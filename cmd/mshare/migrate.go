package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mshare/mshare/internal/platform"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), *configPath)
		},
	}
}

func runMigrate(ctx context.Context, w io.Writer, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == platform.DriverMemory {
		return fmt.Errorf("migrate: the memory driver has no schema")
	}

	db, err := platform.OpenDB(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := platform.AutoMigrate(db, cfg.Database.Driver); err != nil {
		return err
	}
	fmt.Fprintf(w, "Schema up to date (%s)\n", cfg.Database.Driver)
	return nil
}
