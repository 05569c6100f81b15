package main

import (
	"fmt"

	"gametrack/internal/auth"
	"gametrack/internal/config"

	"github.com/spf13/cobra"
)

func newTokenCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for the mariadb backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			if cfg.StorageBackend != config.BackendMariaDB {
				return fmt.Errorf("tokens are issued by %s, not by gametrack", cfg.StorageBackend)
			}

			issuer, err := auth.New(cfg.Auth.AppSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}

			token, err := issuer.Issue(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
