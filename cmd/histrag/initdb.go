package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"histrag/internal/config"
	"histrag/internal/vectorstore"
	"histrag/internal/vectorstore/postgres"
)

func newInitDBCmd(a *app) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the vector store schema",
		Long: `Creates the pgvector extension, the passage table and its metadata indexes.
Other stores create their schema on open; --reset empties them instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(config.Requirements{Store: true}); err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := a.store(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := ensureSchema(ctx, st, reset); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s store ready\n", a.cfg.VectorStore.Type)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop existing passages first")
	return cmd
}

// ensureSchema creates the postgres schema. Other stores create theirs on
// open, so reset only empties them.
func ensureSchema(ctx context.Context, st vectorstore.Storage, reset bool) error {
	if pg, ok := st.(*postgres.Storage); ok {
		return pg.EnsureSchema(ctx, reset)
	}
	if reset {
		return st.Truncate(ctx)
	}
	return nil
}
