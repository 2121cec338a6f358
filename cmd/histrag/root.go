package main

import (
	"github.com/spf13/cobra"

	"histrag/internal/config"
	"histrag/internal/logger"
)

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "histrag",
		Short: "Question answering over the history of Enghien",
		Long: `histrag turns the digitized book into metadata-tagged chunks, indexes
them in a vector store and answers questions grounded on the retrieved passages.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetVerbose(a.verbose)
			config.LoadEnv()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/histrag/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newChunkCmd(a),
		newInitDBCmd(a),
		newIngestCmd(a),
		newSearchCmd(a),
		newAskCmd(a),
		newServeCmd(a),
		newTUICmd(a),
	)
	return root
}
