package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/config"
	httppresentation "github.com/Zhima-Mochi/minishop-storefront/internal/presentation/http"
	"github.com/spf13/cobra"
)

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var (
		userID int64
		email  string
		admin  bool
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath, flags.envFiles...)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not set")
			}
			if userID <= 0 {
				return errors.New("--user must be positive")
			}
			tok, err := httppresentation.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.AdminRole).Issue(userID, email, admin, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id (token subject)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
