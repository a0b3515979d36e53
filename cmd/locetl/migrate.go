package main

import (
	"github.com/spf13/cobra"
)

func migrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the LOC schema and seed the LOC type and level vocabulary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context(), true)
			if err != nil {
				a.logger.Error("migration failed", "error", err)
				return err
			}
			a.logger.Info("schema up to date", "driver", a.cfg.DatabaseDriver)
			return store.Close()
		},
	}
}
