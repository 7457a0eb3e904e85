// Package handlers provides HTTP handlers for the catalog assistant API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/query"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/retrieval"
)

// maxBodyBytes bounds a chat request body.
const maxBodyBytes = 64 << 10

// Answerer is the engine contract the handlers depend on.
type Answerer interface {
	Answer(ctx context.Context, req retrieval.Request) (*retrieval.ComposedResponse, error)
}

// ChatHandler answers visitor turns.
type ChatHandler struct {
	logger *observability.Logger
	engine Answerer
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(logger *observability.Logger, engine Answerer) *ChatHandler {
	return &ChatHandler{logger: logger, engine: engine}
}

// ChatRequestDTO is the API request body.
type ChatRequestDTO struct {
	Query         string            `json:"query"`
	PreviousQuery string            `json:"previousQuery,omitempty"`
	SessionID     string            `json:"sessionId,omitempty"`
	PageContext   query.PageContext `json:"pageContext"`
	TopK          int               `json:"topK,omitempty"`
}

// Chat handles POST /api/v1/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.WithContext(ctx)

	var reqDTO ChatRequestDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&reqDTO); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if strings.TrimSpace(reqDTO.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required", "")
		return
	}
	if reqDTO.TopK < 0 || reqDTO.TopK > retrieval.MaxTopK {
		writeError(w, http.StatusBadRequest, "invalid topK", fmt.Sprintf("topK must be between 0 and %d", retrieval.MaxTopK))
		return
	}

	resp, err := h.engine.Answer(ctx, retrieval.Request{
		Query:         reqDTO.Query,
		PreviousQuery: reqDTO.PreviousQuery,
		SessionID:     reqDTO.SessionID,
		PageContext:   reqDTO.PageContext,
		TopK:          reqDTO.TopK,
	})
	if err != nil {
		switch {
		case errors.Is(err, retrieval.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, "query is required", err.Error())
		case errors.Is(err, retrieval.ErrStoreUnavailable):
			logger.Warn().Err(err).Msg("chat failed: store unavailable")
			writeError(w, http.StatusServiceUnavailable, "content store unavailable", "")
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "request timed out", "")
		case errors.Is(err, context.Canceled):
			// Client went away; nothing useful to write.
			logger.Debug().Msg("chat canceled by client")
		default:
			logger.Error().Err(err).Msg("chat failed")
			writeError(w, http.StatusInternalServerError, "chat failed", "")
		}
		return
	}

	logger.Debug().
		Str("type", string(resp.Type)).
		Float64("confidence", resp.Confidence).
		Int64("latency_ms", resp.LatencyMs).
		Bool("cached", resp.Cached).
		Msg("chat answered")

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
