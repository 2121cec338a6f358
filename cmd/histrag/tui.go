package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"histrag/internal/config"
	"histrag/internal/logger"
	"histrag/internal/retrieval"
	"histrag/internal/tui"
)

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse search results in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(config.Requirements{Embedder: true, Store: true}); err != nil {
				return err
			}
			svc, st, err := a.service(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.Count(cmd.Context())
			if err != nil {
				return err
			}
			opts := retrieval.Options{Count: a.cfg.Retrieval.Count}.WithThreshold(a.cfg.Retrieval.Threshold)
			subtitle := fmt.Sprintf("%d passages indexés · seuil %.2f · ↑/↓ pour naviguer · Échap pour quitter", n, a.cfg.Retrieval.Threshold)
			// Log lines would tear the alternate screen.
			logPath := filepath.Join(os.TempDir(), "histrag-tui.log")
			if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); err == nil {
				logger.SetOutput(f)
				defer func() {
					logger.SetOutput(os.Stderr)
					f.Close()
				}()
			}
			m := tui.New(svc, opts, subtitle)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}
