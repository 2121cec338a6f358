package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"histrag/internal/assembler"
	"histrag/internal/chunker"
	"histrag/internal/config"
	"histrag/internal/ingest"
	"histrag/internal/logger"
)

const progressWidth = 30

func newIngestCmd(a *app) *cobra.Command {
	var (
		chunksPath string
		skipVerify bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed the chunk list and load it into the vector store",
		Long: `Truncates the store, then embeds and inserts the chunks in sequential
batches. A probe search is run afterwards to check the index answers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(config.Requirements{Embedder: true, Store: true}); err != nil {
				return err
			}
			chunks, err := chunker.ReadFile(chunksPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			emb, err := a.ingestEmbedder()
			if err != nil {
				return err
			}
			st, err := a.store(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := ensureSchema(ctx, st, false); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingesting %d chunks with %s (dimension %d)\n", len(chunks), emb.Name(), emb.Dimension())
			p := ingest.NewPipeline(emb, st, ingest.Config{
				BatchSize:  a.cfg.Ingest.BatchSize,
				BatchDelay: a.cfg.Ingest.BatchDelay(),
			})
			report, err := p.Run(ctx, chunks, func(pr ingest.Progress) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\r%s", progressLine(pr))
			})
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("ingestion aborted: %w", err)
			}
			fmt.Fprintf(out, "Run %s: %d chunks in %d batches, %s (%.1f chunks/s)\n",
				report.RunID, report.Inserted, report.Batches, report.Elapsed.Round(time.Millisecond), report.Throughput())

			if skipVerify {
				return nil
			}
			logger.Section("Verification")
			v, err := p.Verify(ctx, "")
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			printVerification(out, v)
			return nil
		},
	}
	cmd.Flags().StringVarP(&chunksPath, "chunks", "c", defaultChunksPath, "chunk list produced by the chunk command")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "skip the probe search after loading")
	return cmd
}

// progressLine renders "[████░░░░] 40/100 (batch 3/5)".
func progressLine(p ingest.Progress) string {
	filled := 0
	if p.Total > 0 {
		filled = p.Done * progressWidth / p.Total
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressWidth-filled)
	return fmt.Sprintf("[%s] %d/%d (batch %d/%d)", bar, p.Done, p.Total, p.Batch, p.Batches)
}

func printVerification(w io.Writer, v ingest.Verification) {
	fmt.Fprintf(w, "Passages stored: %d\n", v.Count)
	fmt.Fprintf(w, "Probe %q: %d result(s)\n", ingest.VerifyQuery, len(v.Results))
	for _, r := range v.Results {
		fmt.Fprintf(w, "  %.3f  %s\n", r.Similarity, assembler.Location(r.Metadata))
	}
}
