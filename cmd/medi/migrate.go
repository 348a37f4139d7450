package main

import (
	"github.com/spf13/cobra"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/app"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := app.Load()
			if err != nil {
				return err
			}
			defer log.Sync()
			svc, err := app.OpenDatabase(log, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()
			log.Info("Migrations applied", "dialect", svc.Dialect(), "rag_backend", cfg.RAG.Backend)
			return nil
		},
	}
}
