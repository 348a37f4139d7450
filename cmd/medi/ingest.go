package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/app"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/modules/ingest"
)

func newIngestCmd() *cobra.Command {
	var (
		dir         string
		concurrency int
		chunkSize   int
		overlap     int
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and store knowledge documents (.md, .txt, .pdf)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := app.Load()
			if err != nil {
				return err
			}
			if cfg.RAG.Backend == string(app.VectorBackendMemory) {
				log.Warn("RAG_BACKEND=memory; ingested chunks will not outlive this process")
			}
			a, err := app.New(cmd.Context(), log, cfg)
			if err != nil {
				log.Sync()
				return err
			}
			defer a.Close(context.Background())

			in, err := a.Services.NewIngester(log, a.Metrics, ingest.Config{
				ChunkSize:   chunkSize,
				Overlap:     overlap,
				Concurrency: concurrency,
			})
			if err != nil {
				return err
			}
			stats, err := in.IngestDir(cmd.Context(), dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "inserted: %d\n", stats.Inserted)
			fmt.Fprintf(out, "skipped: %d\n", stats.Skipped)
			fmt.Fprintf(out, "failed: %d\n", stats.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./knowledge", "directory of knowledge documents")
	cmd.Flags().IntVar(&concurrency, "concurrency", ingest.DefaultConcurrency, "files processed in parallel")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", ingest.DefaultChunkSize, "chunk size in characters")
	cmd.Flags().IntVar(&overlap, "overlap", ingest.DefaultOverlap, "overlap between chunks in characters")
	return cmd
}
