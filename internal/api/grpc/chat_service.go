// Package grpc provides the Connect RPC surface of the catalog assistant.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/query"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/retrieval"
)

const (
	// ChatServiceName is the fully-qualified service name.
	ChatServiceName = "catalog.v1.ChatService"
	// AskProcedure is the unary procedure answering one visitor turn.
	AskProcedure = "/" + ChatServiceName + "/Ask"
)

// Answerer is the engine contract the service depends on.
type Answerer interface {
	Answer(ctx context.Context, req retrieval.Request) (*retrieval.ComposedResponse, error)
}

// AskRequest is the Ask request message.
type AskRequest struct {
	Query         string            `json:"query"`
	PreviousQuery string            `json:"previousQuery,omitempty"`
	SessionID     string            `json:"sessionId,omitempty"`
	PageContext   query.PageContext `json:"pageContext"`
	TopK          int32             `json:"topK,omitempty"`
}

// AskResponse is the Ask response message.
type AskResponse = retrieval.ComposedResponse

// ChatService implements the Connect chat service.
type ChatService struct {
	logger *observability.Logger
	engine Answerer
}

// NewChatService creates a new chat service.
func NewChatService(logger *observability.Logger, engine Answerer) *ChatService {
	return &ChatService{logger: logger, engine: engine}
}

// Ask answers one turn.
func (s *ChatService) Ask(ctx context.Context, req *connect.Request[AskRequest]) (*connect.Response[AskResponse], error) {
	msg := req.Msg
	if strings.TrimSpace(msg.Query) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("query is required"))
	}
	if msg.TopK < 0 || msg.TopK > retrieval.MaxTopK {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("topK must be between 0 and 50"))
	}

	if requestID := req.Header().Get("X-Request-Id"); requestID != "" && observability.RequestIDFromContext(ctx) == "" {
		ctx = observability.ContextWithRequestID(ctx, requestID)
	}

	resp, err := s.engine.Answer(ctx, retrieval.Request{
		Query:         msg.Query,
		PreviousQuery: msg.PreviousQuery,
		SessionID:     msg.SessionID,
		PageContext:   msg.PageContext,
		TopK:          int(msg.TopK),
	})
	if err != nil {
		return nil, s.toConnectError(ctx, err)
	}

	out := connect.NewResponse(resp)
	if resp.RequestID != "" {
		out.Header().Set("X-Request-Id", resp.RequestID)
	}
	return out, nil
}

func (s *ChatService) toConnectError(ctx context.Context, err error) *connect.Error {
	switch {
	case errors.Is(err, retrieval.ErrEmptyQuery):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, retrieval.ErrStoreUnavailable):
		s.logger.WithContext(ctx).Warn().Err(err).Msg("Ask failed: store unavailable")
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		s.logger.WithContext(ctx).Error().Err(err).Msg("Ask failed")
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}
}

// NewChatServiceHandler builds the HTTP handler for the service. It returns
// the path prefix to mount it on.
func NewChatServiceHandler(svc *ChatService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)
	ask := connect.NewUnaryHandler(AskProcedure, svc.Ask, opts...)

	mux := http.NewServeMux()
	mux.Handle(AskProcedure, ask)
	return "/" + ChatServiceName + "/", mux
}

// NewChatClient returns a Connect client for the Ask procedure.
func NewChatClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *connect.Client[AskRequest, AskResponse] {
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return connect.NewClient[AskRequest, AskResponse](httpClient, strings.TrimRight(baseURL, "/")+AskProcedure, opts...)
}

// JSONCodec marshals plain Go structs. It replaces the built-in "json" codec,
// which only accepts protobuf messages.
type JSONCodec struct{}

// Name implements connect.Codec.
func (JSONCodec) Name() string { return "json" }

// Marshal implements connect.Codec.
func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements connect.Codec.
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
