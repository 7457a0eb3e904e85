package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/bootstrap"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/pkg/engine"
)

// asker answers one turn, either in-process or against a running server.
type asker interface {
	Ask(ctx context.Context, req retrieval.Request) (*retrieval.ComposedResponse, error)
	Close() error
}

// newAsker returns a remote asker when server is set, otherwise an in-process
// engine built from the loaded config.
func newAsker(ctx context.Context, server string) (asker, error) {
	if server != "" {
		return &remoteAsker{client: engine.NewClient(engine.ClientConfig{
			BaseURL:    server,
			Timeout:    30 * time.Second,
			RetryCount: 2,
		})}, nil
	}

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{
		Migrate:         cfg.IsDevelopment(),
		DisableRecorder: true,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}
	return &localAsker{app: app}, nil
}

type localAsker struct {
	app *bootstrap.App
}

func (l *localAsker) Ask(ctx context.Context, req retrieval.Request) (*retrieval.ComposedResponse, error) {
	return l.app.Engine.Answer(ctx, req)
}

func (l *localAsker) Close() error {
	return l.app.Close()
}

type remoteAsker struct {
	client *engine.Client
}

func (r *remoteAsker) Ask(ctx context.Context, req retrieval.Request) (*retrieval.ComposedResponse, error) {
	var pc map[string]any
	if !req.PageContext.IsZero() {
		if err := convert(req.PageContext, &pc); err != nil {
			return nil, fmt.Errorf("encode page context: %w", err)
		}
	}

	resp, err := r.client.Ask(ctx, engine.AskRequest{
		Query:         req.Query,
		PreviousQuery: req.PreviousQuery,
		SessionID:     req.SessionID,
		PageContext:   pc,
		TopK:          req.TopK,
		RequestID:     req.RequestID,
	})
	if err != nil {
		return nil, err
	}

	var out retrieval.ComposedResponse
	if err := convert(resp, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func (r *remoteAsker) Close() error { return nil }

// convert round-trips src through JSON into dst. The SDK and engine types
// share one wire shape.
func convert(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
