package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
)

// bulkChunk is the number of items sent per bulk request.
const bulkChunk = 200

// Store implements content.Store on top of an OpenSearch index.
type Store struct {
	client *Client
	logger *observability.Logger
}

// NewStore creates a store over client's index.
func NewStore(client *Client, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{client: client, logger: logger.WithOperation("opensearch")}
}

// Search runs a BM25 query for one content kind.
func (s *Store) Search(ctx context.Context, q content.SearchQuery) ([]content.Item, error) {
	if err := s.client.WaitForRateLimit(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(buildSearchBody(q))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	resp, err := s.client.api.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{s.client.index},
		Body:    bytes.NewReader(body),
	})
	if err != nil {
		return nil, classifyError("search "+string(q.Kind), err)
	}

	items := make([]content.Item, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var doc document
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			s.logger.Warn().Str("doc_id", hit.ID).Err(err).Msg("skipping undecodable document")
			continue
		}
		item := doc.item()
		if item.Kind != q.Kind {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Ping checks cluster health.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

// EnsureIndex creates the content index when it does not exist. It reports
// whether the index was created.
func (s *Store) EnsureIndex(ctx context.Context) (bool, error) {
	if err := s.client.WaitForRateLimit(ctx); err != nil {
		return false, err
	}
	resp, err := s.client.api.Indices.Exists(ctx, opensearchapi.IndicesExistsReq{
		Indices: []string{s.client.index},
	})
	switch {
	case resp != nil && resp.StatusCode == http.StatusOK:
		return false, nil
	case resp != nil && resp.StatusCode == http.StatusNotFound:
	case err != nil:
		return false, classifyError("index exists", err)
	}

	body, err := json.Marshal(indexMapping())
	if err != nil {
		return false, fmt.Errorf("marshal index mapping: %w", err)
	}
	if err := s.client.WaitForRateLimit(ctx); err != nil {
		return false, err
	}
	if _, err := s.client.api.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: s.client.index,
		Body:  bytes.NewReader(body),
	}); err != nil {
		return false, classifyError("create index", err)
	}
	s.logger.Info().Str("index", s.client.index).Msg("created content index")
	return true, nil
}

// BulkIndex writes items in chunks. progress, when set, is called with the
// running count of indexed items.
func (s *Store) BulkIndex(ctx context.Context, items []content.Item, progress func(done int)) (int, error) {
	done := 0
	for start := 0; start < len(items); start += bulkChunk {
		end := min(start+bulkChunk, len(items))
		body, err := bulkBody(s.client.index, items[start:end])
		if err != nil {
			return done, err
		}
		if err := s.client.WaitForRateLimit(ctx); err != nil {
			return done, err
		}
		resp, err := s.client.api.Bulk(ctx, opensearchapi.BulkReq{
			Body:   strings.NewReader(body),
			Params: opensearchapi.BulkParams{Refresh: "true"},
		})
		if err != nil {
			return done, classifyError("bulk index", err)
		}
		failed := 0
		if resp.Errors {
			for _, entry := range resp.Items {
				for _, result := range entry {
					if result.Status >= 300 {
						failed++
					}
				}
			}
		}
		done += (end - start) - failed
		if progress != nil {
			progress(done)
		}
		if failed > 0 {
			return done, fmt.Errorf("bulk index: %d of %d documents rejected", failed, end-start)
		}
	}
	return done, nil
}

// bulkBody renders the NDJSON index actions for items.
func bulkBody(index string, items []content.Item) (string, error) {
	var b strings.Builder
	for _, item := range items {
		action := map[string]interface{}{
			"index": map[string]interface{}{"_index": index, "_id": docID(item.Kind, item.ID)},
		}
		actionLine, err := json.Marshal(action)
		if err != nil {
			return "", fmt.Errorf("marshal bulk action: %w", err)
		}
		docLine, err := json.Marshal(newDocument(item))
		if err != nil {
			return "", fmt.Errorf("marshal document %s: %w", item.ID, err)
		}
		b.Write(actionLine)
		b.WriteByte('\n')
		b.Write(docLine)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
