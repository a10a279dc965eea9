package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cernops/keystone/internal/auth"
	strs "github.com/cernops/keystone/pkg/platform/strings"
)

// tokenCommand mints a scoped HS256 token with the configured signing key.
func tokenCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generates an access token for the given user and roles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Auth.JWTSigningKey == "" {
				return errors.New("auth.jwtSigningKey is required to sign tokens")
			}
			userID, _ := cmd.Flags().GetString("user")
			domainID, _ := cmd.Flags().GetString("domain")
			roles, _ := cmd.Flags().GetStringSlice("roles")
			roles = strs.DedupeFold(roles)
			if len(roles) == 0 {
				return errors.New("at least one role is required")
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = c.cfg.Auth.TokenTTL
			}

			svc := auth.NewJWTService(c.cfg.Auth.JWTSigningKey, c.cfg.Auth.Issuer, c.cfg.Auth.Audience)
			signed, err := svc.GenerateAccessToken(userID, domainID, roles, ttl)
			if err != nil {
				return fmt.Errorf("could not sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}
	cmd.Flags().String("user", "", "User ID placed in the token")
	cmd.Flags().String("domain", "", "Domain ID the token is scoped to")
	cmd.Flags().StringSlice("roles", []string{auth.RoleReader}, "Roles granted by the token")
	cmd.Flags().Duration("ttl", 0, "Token lifetime, defaults to auth.tokenTTL")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
