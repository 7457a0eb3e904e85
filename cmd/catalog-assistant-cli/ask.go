package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/query"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/retrieval"
)

// newAskCmd creates the ask subcommand.
func newAskCmd() *cobra.Command {
	var (
		previous      string
		level         int
		originalQuery string
		page          string
		topK          int
		server        string
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Ask a single question",
		Long: `Ask answers one question and prints the composed response.

Without --server the engine runs in-process against the configured store.
Use --level and --original to continue a clarification thread by hand.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newAsker(ctx, server)
			if err != nil {
				return err
			}
			defer a.Close()

			req := retrieval.Request{
				Query:         strings.Join(args, " "),
				PreviousQuery: previous,
				TopK:          topK,
				PageContext: query.PageContext{
					Page:               page,
					ClarificationLevel: level,
					OriginalQuery:      originalQuery,
				},
			}

			spin := ui.NewSpinner("Thinking...")
			spin.Start()
			resp, err := a.Ask(ctx, req)
			spin.Stop()
			if err != nil {
				return err
			}

			if outputJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			renderResponse(ui, resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&previous, "previous", "", "previous query in the conversation")
	cmd.Flags().IntVar(&level, "level", 0, "clarification level to continue from")
	cmd.Flags().StringVar(&originalQuery, "original", "", "original query of the clarification thread")
	cmd.Flags().StringVar(&page, "page", "", "page the visitor is on")
	cmd.Flags().IntVar(&topK, "top-k", 0, "results per kind (0 uses the configured cap)")
	cmd.Flags().StringVar(&server, "server", "", "API base URL (runs in-process when empty)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")

	return cmd
}
