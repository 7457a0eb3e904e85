package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/retrieval"
)

// newChatCmd creates the interactive chat subcommand.
func newChatCmd() *cobra.Command {
	var (
		server      string
		turnTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Hold an interactive multi-turn conversation",
		Long: `Chat keeps the conversation state between turns. When the assistant asks a
clarifying question, answer with an option number to select it or type a
new question. Type "quit" to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newAsker(cmd.Context(), server)
			if err != nil {
				return err
			}
			defer a.Close()

			session := newConversation(uuid.NewString())
			reader := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			ui.Info("Session %s. Type \"quit\" to exit.", session.id)
			for {
				fmt.Fprint(out, "\n> ")
				line, readErr := reader.ReadString('\n')
				line = strings.TrimSpace(line)

				if line != "" {
					if isQuit(line) {
						return nil
					}
					req, ok := session.next(line)
					if !ok {
						ui.Warning("Choose an option between 1 and %d", len(session.last.Options))
					} else {
						ctx, cancel := context.WithTimeout(cmd.Context(), turnTimeout)
						resp, err := a.Ask(ctx, req)
						cancel()
						if err != nil {
							ui.Error("%v", err)
						} else {
							session.record(req, resp)
							if outputJSON {
								if err := printJSON(out, resp); err != nil {
									return err
								}
							} else {
								renderResponse(ui, resp)
							}
						}
					}
				}

				if readErr != nil {
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "API base URL (runs in-process when empty)")
	cmd.Flags().DurationVar(&turnTimeout, "turn-timeout", 30*time.Second, "timeout per turn")

	return cmd
}

func isQuit(s string) bool {
	switch strings.ToLower(s) {
	case "quit", "exit", ":q":
		return true
	}
	return false
}

// conversation carries dialogue state between turns.
type conversation struct {
	id        string
	lastQuery string
	last      *retrieval.ComposedResponse
}

func newConversation(id string) *conversation {
	return &conversation{id: id}
}

// next builds the request for input. A number selects one of the previous
// turn's options; it reports false when the number is out of range.
func (c *conversation) next(input string) (retrieval.Request, bool) {
	req := retrieval.Request{SessionID: c.id, PreviousQuery: c.lastQuery}

	if c.last != nil && len(c.last.Options) > 0 {
		if n, err := strconv.Atoi(input); err == nil {
			if n < 1 || n > len(c.last.Options) {
				return retrieval.Request{}, false
			}
			opt := c.last.Options[n-1]
			req.Query = opt.Query
			req.PageContext = opt.PageContext
			return req, true
		}
	}

	req.Query = input
	if c.last != nil && c.last.PageContext != nil {
		req.PageContext = *c.last.PageContext
	}
	return req, true
}

func (c *conversation) record(req retrieval.Request, resp *retrieval.ComposedResponse) {
	c.lastQuery = req.Query
	c.last = resp
}
