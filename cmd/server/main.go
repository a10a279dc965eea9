// Command server runs the identity Domains API and its maintenance tasks.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cernops/keystone/internal/platform/config"
	"github.com/cernops/keystone/internal/platform/logger"
)

// cli carries state loaded once by the root command for its subcommands.
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	syncLogger func() error
}

func (c *cli) load(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	log, sync, err := logger.New(cfg.Environment)
	if err != nil {
		return fmt.Errorf("could not create logger: %w", err)
	}
	c.cfg, c.logger, c.syncLogger = cfg, log, sync
	return nil
}

func main() {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:               "keystone",
		Short:             "Identity API v3 domains service",
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.yml", "Config file path")

	rootCmd.AddCommand(
		serveCommand(c),
		migrateCommand(c),
		bootstrapCommand(c),
		tokenCommand(c),
		outboxCommand(c),
		envCommand(),
	)

	err := rootCmd.Execute()
	if c.syncLogger != nil {
		_ = c.syncLogger()
	}
	if err != nil {
		os.Exit(1)
	}
}

func envCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Prints the supported environment variables",
		// Skip config loading so help works with an invalid environment.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			usage, err := config.Usage()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), usage)
			return err
		},
	}
}
