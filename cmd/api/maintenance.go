package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"canvasvault/api/internal/store"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			version, err := store.MigrationVersion(ctx, rt.localDB, store.DialectSQLite)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "local database at version %d\n", version)
			if rt.remoteDB != nil {
				version, err := store.MigrationVersion(ctx, rt.remoteDB, store.DialectPostgres)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "remote database at version %d\n", version)
			}
			return nil
		},
	}
}

func newReindexCommand() *cobra.Command {
	var reconcile bool
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild search indexes",
		Long: `Rebuild the local full-text index and, when Meilisearch and a remote
database are configured, push every cloud asset to the remote index.

With --reconcile, trashed local assets whose file moves did not finish
are repaired first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			service := rt.service()
			out := cmd.OutOrStdout()

			if reconcile {
				report, err := service.ReconcileTrash(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "trash: checked %d, moved %d, cleared %d\n", report.Checked, report.Moved, report.Cleared)
			}

			n, err := service.ReindexLocal(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "local index: %d assets\n", n)

			if rt.remote != nil && rt.meili != nil {
				n, err := service.ReindexRemote(ctx, rt.remote)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "remote index: %d assets\n", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "repair trashed assets with unfinished file moves")
	return cmd
}
