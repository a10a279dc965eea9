package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	auditpostgres "github.com/cernops/keystone/pkg/platform/audit/store/postgres"
)

func outboxCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspects and prunes the audit outbox",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Prints the number of entries waiting to be relayed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := auditpostgres.New(db.SQL).Pending(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "pending: %d\n", n)
			return err
		},
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Deletes relayed entries older than the retention period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			retention, _ := cmd.Flags().GetDuration("older-than")
			db, err := openDB(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := auditpostgres.New(db.SQL).Purge(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			c.logger.InfoContext(ctx, "outbox purged", "deleted", n, "older_than", retention)
			return nil
		},
	}
	purge.Flags().Duration("older-than", 7*24*time.Hour, "Keep relayed entries newer than this")

	cmd.AddCommand(status, purge)
	return cmd
}
