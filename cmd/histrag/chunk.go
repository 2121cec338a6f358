package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"histrag/internal/chunker"
	"histrag/internal/config"
	"histrag/internal/logger"
	"histrag/internal/source"
)

const defaultChunksPath = "data/chunks.json"

func newChunkCmd(a *app) *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "chunk",
		Short: "Split the book into metadata-tagged chunks",
		Long: `Loads the source text (plain text or PDF), normalizes OCR artefacts,
detects book, chapter, section and page markers and writes the chunk list as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(config.Requirements{}); err != nil {
				return err
			}
			raw, err := source.Load(input)
			if err != nil {
				return err
			}
			c := a.cfg.Chunker
			b := chunker.NewBuilder(chunker.Config{
				MinChunkSize: c.MinChunkSize,
				MaxChunkSize: c.MaxChunkSize,
				OverlapSize:  c.OverlapSize,
				MinFlushSize: c.MinFlushSize,
				InitialBook:  c.InitialBook,
			})
			logger.Section("Chunking")
			chunks := b.Chunk(raw)
			if err := chunker.WriteFile(output, chunks); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			printStats(cmd.OutOrStdout(), chunker.Summarize(chunks))
			fmt.Fprintf(cmd.OutOrStdout(), "Chunks written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "source text or PDF file")
	cmd.Flags().StringVarP(&output, "output", "o", defaultChunksPath, "chunk list to write")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func printStats(w io.Writer, st chunker.Stats) {
	fmt.Fprintf(w, "Chunks:   %d\n", st.Count)
	if st.Count == 0 {
		return
	}
	fmt.Fprintf(w, "Average:  %.0f chars\n", st.Average)
	fmt.Fprintf(w, "Min/Max:  %d / %d chars\n", st.Min, st.Max)
	fmt.Fprintln(w, "Per book:")
	for _, b := range st.PerBook {
		fmt.Fprintf(w, "  Livre %-4s %d\n", b.Book, b.Count)
	}
}
