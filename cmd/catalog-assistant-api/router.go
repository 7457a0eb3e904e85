package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/cmd/catalog-assistant-api/handlers"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/cmd/catalog-assistant-api/middleware"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/api/grpc"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/config"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
)

// RouterDeps are the collaborators the router mounts.
type RouterDeps struct {
	Engine    handlers.Answerer
	Ready     func(ctx context.Context) error
	Metrics   http.Handler
	Server    config.ServerConfig
	RateLimit config.RateLimitConfig
	Version   string
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(deps.Server.AllowedOrigins))

	health := handlers.NewHealthHandler(logger, deps.Ready, deps.Version)
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	chat := handlers.NewChatHandler(logger, deps.Engine)
	path, connectHandler := grpc.NewChatServiceHandler(grpc.NewChatService(logger, deps.Engine))

	r.Group(func(r chi.Router) {
		if deps.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiter(deps.RateLimit.RequestsPerSecond, deps.RateLimit.Burst).Handler)
		}
		if deps.Server.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(deps.Server.RequestTimeout))
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/chat", chat.Chat)
		})
		r.Handle(path+"*", connectHandler)
	})

	return r
}
