package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"histrag/internal/assembler"
	"histrag/internal/config"
	"histrag/internal/domain"
)

func newAskCmd(a *app) *cobra.Command {
	var filter domain.RetrievalFilter
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the book",
		Long: `Retrieves the passages closest to the question and streams an answer
grounded on them, followed by the cited locations.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(config.Requirements{Embedder: true, Store: true, Generator: true}); err != nil {
				return err
			}
			svc, st, err := a.service(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			var sources []domain.SearchResult
			err = svc.AskStream(cmd.Context(), strings.Join(args, " "), filter,
				func(results []domain.SearchResult) error {
					sources = results
					return nil
				},
				func(delta string) error {
					_, err := fmt.Fprint(out, delta)
					return err
				})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			if len(sources) > 0 {
				fmt.Fprintf(out, "\nSources :\n%s\n", assembler.FormatSources(sources))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.Book, "book", "", "restrict to a book (roman numeral)")
	cmd.Flags().StringVar(&filter.Chapter, "chapter", "", "restrict to a chapter (roman numeral)")
	return cmd
}
