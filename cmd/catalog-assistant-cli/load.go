package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/bootstrap"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/storage"
)

// newLoadCmd creates the load subcommand.
func newLoadCmd() *cobra.Command {
	var (
		fixtures string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load catalog items into the configured store",
		Long: `Load reads a YAML fixture file of articles, events, services and products
and upserts them into the configured store. SQL stores are migrated first and
OpenSearch indexes are created when missing. Cached responses are dropped
afterwards so answers reflect the new content.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			items, err := storage.LoadFixtures(fixtures)
			if err != nil {
				return err
			}
			ui.Step("Loaded %d items from %s", len(items), fixtures)

			app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Migrate: true, DisableRecorder: true})
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer app.Close()

			start := time.Now()
			written, err := loadItems(ctx, app, items)
			if err != nil {
				return err
			}
			if err := app.InvalidateCache(ctx); err != nil {
				logger.Warn().Err(err).Msg("Failed to invalidate response cache")
			}

			counts := countByKind(items)
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"store":    cfg.Store.Driver,
					"written":  written,
					"by_kind":  counts,
					"duration": time.Since(start).String(),
				})
			}

			ui.Success("Wrote %d items to %s in %s", written, cfg.Store.Driver, FormatDuration(time.Since(start)))
			for _, k := range content.Kinds {
				ui.KeyValue(string(k), counts[k])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fixtures, "fixtures", "", "path to the YAML fixture file")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall timeout")
	_ = cmd.MarkFlagRequired("fixtures")

	return cmd
}

// loadItems writes items to whichever store the app opened and returns the
// number written.
func loadItems(ctx context.Context, app *bootstrap.App, items []content.Item) (int, error) {
	bar := ui.NewLoadBar(int64(len(items)), "Loading")
	defer bar.Finish()

	if app.Search != nil {
		created, err := app.Search.EnsureIndex(ctx)
		if err != nil {
			return 0, fmt.Errorf("ensure index: %w", err)
		}
		if created {
			logger.Info().Msg("Created search index")
		}
		failed, err := app.Search.BulkIndex(ctx, items, bar.Set)
		if err != nil {
			return 0, fmt.Errorf("bulk index: %w", err)
		}
		if failed > 0 {
			ui.Warning("%d items were rejected by the index", failed)
		}
		return len(items) - failed, nil
	}

	if err := app.SQL.UpsertBatch(ctx, items, bar.Set); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	return len(items), nil
}

func countByKind(items []content.Item) map[content.Kind]int {
	out := make(map[content.Kind]int, len(content.Kinds))
	for _, it := range items {
		out[it.Kind]++
	}
	return out
}
