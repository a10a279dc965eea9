package main

import (
	"github.com/spf13/cobra"

	"github.com/cernops/keystone/internal/bootstrap"
	"github.com/cernops/keystone/pkg/ids"
)

func bootstrapCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Creates the seeded domains and roles that do not exist yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if c.cfg.Database.URL == "" {
				c.logger.WarnContext(ctx, "no database configured, seeding in-memory stores has no lasting effect")
			}
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				file = c.cfg.Identity.BootstrapFile
			}
			seed, err := bootstrap.Load(file, ids.DomainID(c.cfg.Identity.DefaultDomainID))
			if err != nil {
				return err
			}

			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := bootstrap.Apply(ctx, seed, a.domains, a.identity, c.logger)
			if err != nil {
				return err
			}
			c.logger.InfoContext(ctx, "bootstrap complete",
				"domains_created", res.DomainsCreated,
				"roles_created", res.RolesCreated,
			)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Seed file, defaults to identity.bootstrapFile or the built-in seed")
	return cmd
}
