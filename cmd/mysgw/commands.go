package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grote-beer/MySensors/internal/infrastructure/config"
	"github.com/grote-beer/MySensors/internal/infrastructure/database"
	"github.com/grote-beer/MySensors/migrations"
)

// newRootCommand builds the mysgw command tree. Without a subcommand it
// runs the gateway.
func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mysgw",
		Short: "MySensors MQTT gateway",
		Long: "mysgw bridges MySensors messages to an MQTT broker. Messages from the sensor " +
			"network are published under the publish prefix; messages published under the " +
			"subscribe prefix are handed to the sensor network.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), getConfigPath(configPath))
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"configuration file (default $MYSGW_CONFIG or "+defaultConfigPath+")")

	cmd.AddCommand(newVersionCommand(), newMigrateCommand(&configPath))
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mysgw %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// newMigrateCommand groups the node database maintenance commands. The
// gateway applies pending migrations itself on startup.
func newMigrateCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or roll back the node database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations not yet applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), *configPath, func(ctx context.Context, db *database.DB) error {
				pending, err := db.PendingMigrations(ctx, migrations.FS)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(pending) == 0 {
					fmt.Fprintln(out, "database is up to date")
					return nil
				}
				for _, m := range pending {
					fmt.Fprintf(out, "pending %s %s\n", m.Version, m.Name)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recently applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), *configPath, func(ctx context.Context, db *database.DB) error {
				if err := db.MigrateDown(ctx, migrations.FS); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back latest migration")
				return nil
			})
		},
	})

	return cmd
}

// withDatabase opens the configured database for fn.
func withDatabase(ctx context.Context, configPath string, fn func(context.Context, *database.DB) error) error {
	cfg, err := config.Load(getConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.Path == database.MemoryPath {
		return fmt.Errorf("database.path is %s, nothing to migrate", database.MemoryPath)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Read-mostly maintenance command

	return fn(ctx, db)
}
