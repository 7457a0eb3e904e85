package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/bootstrap"
)

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Migrate: true, DisableRecorder: true})
			if err != nil {
				return err
			}
			defer app.Close()

			result := map[string]any{"store": cfg.Store.Driver}
			if app.Search != nil {
				created, err := app.Search.EnsureIndex(ctx)
				if err != nil {
					return err
				}
				result["index_created"] = created
			} else {
				version, err := app.SQL.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				result["schema_version"] = version
			}

			if outputJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			ui.Success("Store %s is up to date", cfg.Store.Driver)
			for k, v := range result {
				if k != "store" {
					ui.KeyValue(k, v)
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")
	return cmd
}
