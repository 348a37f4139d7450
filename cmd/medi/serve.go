package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/app"
)

const closeTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and WhatsApp webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := app.Load()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), log, cfg)
			if err != nil {
				log.Error("Startup failed", "error", err)
				log.Sync()
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				a.Close(ctx)
			}()

			log.Info("MEDI starting", "env", cfg.App.Env, "addr", cfg.Addr(), "rag_backend", a.Services.Backend, "llm_enabled", a.Services.Generator.Enabled())
			return a.Run(cmd.Context())
		},
	}
}
