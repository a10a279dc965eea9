package main

import (
	"github.com/spf13/cobra"

	"github.com/cernops/keystone/internal/platform/postgres"
)

func migrateCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrates database to the latest version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			down, _ := cmd.Flags().GetBool("down")
			status, _ := cmd.Flags().GetBool("status")
			switch {
			case status:
				return postgres.MigrationStatus(ctx, db.SQL)
			case down:
				c.logger.InfoContext(ctx, "rolling back the latest migration")
				return postgres.MigrateDown(ctx, db.SQL)
			default:
				c.logger.InfoContext(ctx, "applying migrations")
				return postgres.Migrate(ctx, db.SQL)
			}
		},
	}
	cmd.Flags().Bool("down", false, "Roll back the most recent migration")
	cmd.Flags().Bool("status", false, "Print migration status instead of migrating")
	cmd.MarkFlagsMutuallyExclusive("down", "status")
	return cmd
}
