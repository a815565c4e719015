package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/corpus/internal/storage"
)

// buildMigrateCmd creates the "migrate" command group.
func buildMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  `Manage database migrations. The schema must match the version of corpus you are running.`,
	}

	cmd.AddCommand(buildMigrateUpCmd(), buildMigrateDownCmd(), buildMigrateStatusCmd())
	return cmd
}

func buildMigrateUpCmd() *cobra.Command {
	var (
		configPath string
		steps      int
	)
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd, resolveConfigPath(configPath), steps)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().IntVar(&steps, "steps", 0, "Number of migrations to apply (0 = all)")
	return cmd
}

func buildMigrateDownCmd() *cobra.Command {
	var (
		configPath string
		steps      int
	)
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateDown(cmd, resolveConfigPath(configPath), steps)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	return cmd
}

func buildMigrateStatusCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func runMigrateUp(cmd *cobra.Command, configPath string, steps int) error {
	cfg, logger, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := storage.NewMigrator(db)
	if err != nil {
		return err
	}
	applied, err := migrator.Up(ctx, steps)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		logger.Info(ctx, "no pending migrations")
		return nil
	}
	for _, id := range applied {
		logger.Info(ctx, "applied migration", "id", id)
	}
	return nil
}

func runMigrateDown(cmd *cobra.Command, configPath string, steps int) error {
	cfg, logger, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger.Warn(ctx, "rolling back migrations", "steps", steps)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := storage.NewMigrator(db)
	if err != nil {
		return err
	}
	rolled, err := migrator.Down(ctx, steps)
	if err != nil {
		return err
	}
	if len(rolled) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations to roll back.")
		return nil
	}
	for _, id := range rolled {
		logger.Info(ctx, "rolled back migration", "id", id)
	}
	return nil
}

func runMigrateStatus(cmd *cobra.Command, configPath string) error {
	cfg, _, err := loadRuntime(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := storage.NewMigrator(db)
	if err != nil {
		return err
	}
	applied, pending, err := migrator.Status(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Applied migrations:")
	if len(applied) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, entry := range applied {
		fmt.Fprintf(out, "  - %s (%s)\n", entry.ID, entry.AppliedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Pending migrations:")
	if len(pending) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, entry := range pending {
		fmt.Fprintf(out, "  - %s\n", entry.ID)
	}
	return nil
}
