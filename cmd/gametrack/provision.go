package main

import (
	"fmt"
	"log/slog"

	pbstore "gametrack/internal/storage/pocketbase"

	"github.com/spf13/cobra"
)

func newProvisionCmd(load loader) *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the user_games collection on PocketBase",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			if cfg.PocketBase.AdminEmail == "" {
				return fmt.Errorf("pocketbase.admin_email is required to provision collections")
			}

			client := newPocketBase(cfg, log)

			if cleanup {
				if err := pbstore.Cleanup(cmd.Context(), client); err != nil {
					return err
				}
				log.Info("collection removed", slog.String("collection", pbstore.Collection))
				return nil
			}

			created, err := pbstore.Provision(cmd.Context(), client)
			if err != nil {
				return err
			}
			log.Info("collection provisioned", slog.String("collection", pbstore.Collection), slog.Bool("created", created))
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "delete the collection and every record in it")

	return cmd
}
