package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/grounded-search/internal/core/domain"
	"github.com/avolkov/grounded-search/internal/infrastructure/resilience"
)

// Reserved payload keys; everything else in a point payload is record
// metadata and therefore filterable.
const (
	payloadRecordID       = "record_id"
	payloadSourceTable    = "source_table"
	payloadEmbeddableText = "embeddable_text"
	payloadDisplayText    = "display_text"
	payloadUpdatedAt      = "updated_at"

	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// Client talks to qdrant over its HTTP API. Points carry a named dense
// vector and a named sparse vector so both retrieval modes hit one
// collection.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

// send executes one qdrant HTTP call through the resilience executor, so
// transient failures get the same retry-once and breaker treatment as the
// other downstreams. Non-2xx responses come back as *HTTPStatusError.
func (c *Client) send(ctx context.Context, operation, method, url string, body []byte) ([]byte, error) {
	var out []byte
	call := func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return fmt.Errorf("read %s response: %w", operation, err)
		}
		if resp.StatusCode >= 300 {
			return &HTTPStatusError{
				Operation:  operation,
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       string(payload),
			}
		}
		out = payload
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "qdrant."+operation, call, classifyQdrantError)
	} else {
		err = call(ctx)
	}
	return out, err
}

func (c *Client) IndexRecords(ctx context.Context, records []domain.Record, vectors [][]float32) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) != len(vectors) {
		return fmt.Errorf("records/vectors mismatch: %d vs %d", len(records), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(records))
	for i, rec := range records {
		sparse := encodeSparseRecord(rec.EmbeddableText, rec.SourceTable)
		vector := map[string]any{denseVectorName: vectors[i]}
		if len(sparse.Indices) > 0 {
			vector[sparseVectorName] = sparse
		}
		points = append(points, point{
			// Deterministic point ID: re-indexing a record overwrites its point.
			ID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte(rec.ID)).String(),
			Vector:  vector,
			Payload: recordToPayload(rec),
		})
	}

	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	_, err = c.send(ctx, "upsert", http.MethodPut, url, body)
	return err
}

func (c *Client) SearchDense(ctx context.Context, queryVector []float32, filter domain.FilterClause, limit int) ([]domain.ScoredCandidate, error) {
	return c.search(ctx, map[string]any{
		"name":   denseVectorName,
		"vector": queryVector,
	}, filter, limit)
}

func (c *Client) SearchSparse(ctx context.Context, queryText string, filter domain.FilterClause, limit int) ([]domain.ScoredCandidate, error) {
	sparse := encodeSparseQuery(queryText)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	return c.search(ctx, map[string]any{
		"name":   sparseVectorName,
		"vector": sparse,
	}, filter, limit)
}

func (c *Client) search(ctx context.Context, namedVector map[string]any, filter domain.FilterClause, limit int) ([]domain.ScoredCandidate, error) {
	reqBody := map[string]any{
		"vector":       namedVector,
		"limit":        limit,
		"with_payload": true,
	}
	if qf := filterToQdrant(filter); qf != nil {
		reqBody["filter"] = qf
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	payload, err := c.send(ctx, "search", http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(payload, &searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.ScoredCandidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.ScoredCandidate{
			Record:   recordFromPayload(r.Payload),
			RawScore: r.Score,
		})
	}
	// qdrant orders by score; enforce the record-id tie-break for determinism.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RawScore != out[j].RawScore {
			return out[i].RawScore > out[j].RawScore
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	return out, nil
}

// filterToQdrant translates the predicate tree into qdrant filter JSON.
// Returns nil for match-all so no filter key is sent.
func filterToQdrant(filter domain.FilterClause) map[string]any {
	cond := filterCondition(filter)
	if cond == nil {
		return nil
	}
	if m, ok := cond.(map[string]any); ok {
		if _, grouped := m["must"]; grouped {
			return m
		}
		if _, grouped := m["should"]; grouped {
			return m
		}
	}
	return map[string]any{"must": []any{cond}}
}

func filterCondition(filter domain.FilterClause) any {
	switch f := filter.(type) {
	case domain.Equals:
		return map[string]any{
			"key":   f.Key,
			"match": map[string]any{"value": f.Value},
		}
	case domain.And:
		if len(f.Clauses) == 0 {
			return nil
		}
		conds := make([]any, 0, len(f.Clauses))
		for _, sub := range f.Clauses {
			if c := filterCondition(sub); c != nil {
				conds = append(conds, c)
			}
		}
		if len(conds) == 0 {
			return nil
		}
		return map[string]any{"must": conds}
	case domain.Or:
		if len(f.Clauses) == 0 {
			return nil
		}
		conds := make([]any, 0, len(f.Clauses))
		for _, sub := range f.Clauses {
			if c := filterCondition(sub); c != nil {
				conds = append(conds, c)
			}
		}
		if len(conds) == 0 {
			return nil
		}
		return map[string]any{"should": conds}
	default:
		return nil
	}
}

func recordToPayload(rec domain.Record) map[string]any {
	payload := make(map[string]any, len(rec.Metadata)+5)
	for k, v := range rec.Metadata {
		payload[k] = v
	}
	payload[payloadRecordID] = rec.ID
	payload[payloadSourceTable] = rec.SourceTable
	payload[payloadEmbeddableText] = rec.EmbeddableText
	payload[payloadDisplayText] = rec.DisplayText
	payload[payloadUpdatedAt] = rec.UpdatedAt.UTC().Format(time.RFC3339)
	return payload
}

func recordFromPayload(payload map[string]any) domain.Record {
	rec := domain.Record{
		ID:             getStringPayload(payload, payloadRecordID),
		SourceTable:    getStringPayload(payload, payloadSourceTable),
		EmbeddableText: getStringPayload(payload, payloadEmbeddableText),
		DisplayText:    getStringPayload(payload, payloadDisplayText),
	}
	if ts, err := time.Parse(time.RFC3339, getStringPayload(payload, payloadUpdatedAt)); err == nil {
		rec.UpdatedAt = ts
	}
	reserved := map[string]struct{}{
		payloadRecordID:       {},
		payloadSourceTable:    {},
		payloadEmbeddableText: {},
		payloadDisplayText:    {},
		payloadUpdatedAt:      {},
	}
	for k, v := range payload {
		if _, ok := reserved[k]; ok {
			continue
		}
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]any)
		}
		rec.Metadata[k] = v
	}
	return rec
}

func (c *Client) ensureCollection(ctx context.Context, denseSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == denseSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     denseSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	if _, err := c.send(ctx, "ensure_collection", http.MethodPut, url, body); err != nil {
		// 409 means the collection already exists.
		var statusErr *HTTPStatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusConflict {
			return err
		}
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = denseSize
	c.ensureMu.Unlock()
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
