package grpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/intent"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/retrieval"
)

type stubEngine struct {
	last retrieval.Request
	ctx  context.Context
	err  error
}

func (s *stubEngine) Answer(ctx context.Context, req retrieval.Request) (*retrieval.ComposedResponse, error) {
	s.last = req
	s.ctx = ctx
	if s.err != nil {
		return nil, s.err
	}
	return &retrieval.ComposedResponse{
		Type:       retrieval.ResponseEvents,
		Confidence: 0.82,
		Answer:     "The next matching event is Bluebell Woodland Workshop.",
		Intent:     intent.Events,
		Keywords:   []string{"bluebell", "workshops"},
		RequestID:  observability.RequestIDFromContext(ctx),
	}, nil
}

func newTestClient(t *testing.T, engine Answerer) *connect.Client[AskRequest, AskResponse] {
	t.Helper()
	path, handler := NewChatServiceHandler(NewChatService(observability.NopLogger(), engine))
	assert.Equal(t, "/catalog.v1.ChatService/", path)

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewChatClient(srv.Client(), srv.URL)
}

func TestChatService_Ask(t *testing.T) {
	engine := &stubEngine{}
	client := newTestClient(t, engine)

	req := connect.NewRequest(&AskRequest{
		Query:         "when are your next bluebell workshops",
		PreviousQuery: "bluebells",
		TopK:          5,
	})
	req.Header().Set("X-Request-Id", "req-7")
	req.Msg.PageContext.ClarificationLevel = 1

	resp, err := client.CallUnary(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, retrieval.ResponseEvents, resp.Msg.Type)
	assert.InDelta(t, 0.82, resp.Msg.Confidence, 1e-9)
	assert.Equal(t, "req-7", resp.Msg.RequestID)
	assert.Equal(t, "req-7", resp.Header().Get("X-Request-Id"))

	assert.Equal(t, "when are your next bluebell workshops", engine.last.Query)
	assert.Equal(t, "bluebells", engine.last.PreviousQuery)
	assert.Equal(t, 5, engine.last.TopK)
	assert.Equal(t, 1, engine.last.PageContext.ClarificationLevel)
}

func TestChatService_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  *AskRequest
		err  error
		code connect.Code
	}{
		{"blank query", &AskRequest{Query: "   "}, nil, connect.CodeInvalidArgument},
		{"top k too large", &AskRequest{Query: "tripods", TopK: 51}, nil, connect.CodeInvalidArgument},
		{"engine rejects", &AskRequest{Query: "?"}, retrieval.ErrEmptyQuery, connect.CodeInvalidArgument},
		{"store down", &AskRequest{Query: "tripods"}, fmt.Errorf("answer: %w", retrieval.ErrStoreUnavailable), connect.CodeUnavailable},
		{"unexpected", &AskRequest{Query: "tripods"}, errors.New("boom"), connect.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, &stubEngine{err: tt.err})
			_, err := client.CallUnary(context.Background(), connect.NewRequest(tt.req))
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
			if tt.code == connect.CodeInternal {
				assert.False(t, strings.Contains(err.Error(), "boom"), "internal details must not leak")
			}
		})
	}
}

func TestJSONCodec(t *testing.T) {
	codec := JSONCodec{}
	assert.Equal(t, "json", codec.Name())

	data, err := codec.Marshal(&AskRequest{Query: "iso"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"iso","pageContext":{"clarificationLevel":0}}`, string(data))

	var out AskRequest
	require.NoError(t, codec.Unmarshal([]byte(`{"query":"aperture","topK":3}`), &out))
	assert.Equal(t, "aperture", out.Query)
	assert.EqualValues(t, 3, out.TopK)
}
