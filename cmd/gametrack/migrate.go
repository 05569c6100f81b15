package main

import (
	"gametrack/internal/storage/mariadb"

	"github.com/spf13/cobra"
)

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL schema of the mariadb backend",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			storage, err := mariadb.New(cfg.Database)
			if err != nil {
				return err
			}
			defer storage.Close()

			changed, err := storage.Migrate()
			if err != nil {
				return err
			}
			if !changed {
				log.Info("no migrations to apply")
				return nil
			}

			log.Info("migrations applied")
			return nil
		},
	}
}
