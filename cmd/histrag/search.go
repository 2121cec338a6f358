package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"histrag/internal/assembler"
	"histrag/internal/config"
	"histrag/internal/domain"
	"histrag/internal/retrieval"
	"histrag/internal/summarizer"
)

const summarySentences = 2

type searchFlags struct {
	threshold float64
	count     int
	book      string
	chapter   string
	json      bool
	full      bool
}

func newSearchCmd(a *app) *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Semantic search over the indexed passages",
		Long: `Embeds the query and returns the most similar passages above the
similarity threshold, optionally restricted to a book or chapter.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(config.Requirements{Embedder: true, Store: true}); err != nil {
				return err
			}
			svc, st, err := a.service(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer st.Close()

			opts := retrieval.Options{
				Count:  a.cfg.Retrieval.Count,
				Filter: domain.RetrievalFilter{Book: f.book, Chapter: f.chapter},
			}.WithThreshold(a.cfg.Retrieval.Threshold)
			if cmd.Flags().Changed("threshold") {
				opts = opts.WithThreshold(f.threshold)
			}
			if cmd.Flags().Changed("count") {
				opts.Count = f.count
			}
			results, err := svc.Search(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if f.json {
				return outputSearchJSON(cmd, results)
			}
			outputSearchText(cmd, results, f.full)
			return nil
		},
	}
	cmd.Flags().Float64VarP(&f.threshold, "threshold", "t", retrieval.DefaultThreshold, "minimum similarity, exclusive")
	cmd.Flags().IntVarP(&f.count, "count", "n", retrieval.DefaultCount, "maximum number of results")
	cmd.Flags().StringVar(&f.book, "book", "", "restrict to a book (roman numeral)")
	cmd.Flags().StringVar(&f.chapter, "chapter", "", "restrict to a chapter (roman numeral)")
	cmd.Flags().BoolVar(&f.json, "json", false, "output results as JSON")
	cmd.Flags().BoolVar(&f.full, "full", false, "print whole passages instead of a summary")
	return cmd
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	if results == nil {
		results = []domain.SearchResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func outputSearchText(cmd *cobra.Command, results []domain.SearchResult, full bool) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, assembler.NoResults)
		return
	}
	sum := summarizer.New()
	for i, r := range results {
		fmt.Fprintf(out, "[%d] %s (%.3f)\n", i+1, assembler.Location(r.Metadata), r.Similarity)
		text := r.Content
		if !full {
			text = sum.Summarize(r.Content, summarySentences)
		}
		fmt.Fprintf(out, "    %s\n\n", strings.ReplaceAll(strings.TrimSpace(text), "\n", "\n    "))
	}
}
