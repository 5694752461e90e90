package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// Distance selects the similarity metric for a Qdrant collection.
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

// QdrantIndex implements VectorIndex against Qdrant's REST API.
type QdrantIndex struct {
	baseURL    string
	collection string
	client     *http.Client
	vectorSize int
	distance   Distance
}

var _ VectorIndex = (*QdrantIndex)(nil)

// NewQdrantIndex builds an index client for the given collection.
func NewQdrantIndex(baseURL, collection string, vectorSize int) (*QdrantIndex, error) {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	if collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid qdrant url %q: %w", baseURL, err)
	}
	if vectorSize <= 0 {
		vectorSize = 768
	}
	return &QdrantIndex{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		client:     &http.Client{Timeout: 30 * time.Second},
		vectorSize: vectorSize,
		distance:   DistanceCosine,
	}, nil
}

// CreateSchema provisions the collection if it does not exist yet.
func (q *QdrantIndex) CreateSchema(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{"size": q.vectorSize, "distance": string(q.distance)},
	}
	var resp json.RawMessage
	err := q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collection), body, &resp)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}
	return nil
}

// Add upserts a point carrying the content and metadata as payload.
func (q *QdrantIndex) Add(ctx context.Context, content string, embedding []float32, metadata map[string]any) (string, error) {
	if content == "" {
		return "", fmt.Errorf("%w: empty content", model.ErrMalformedItem)
	}
	id := uuid.NewString()
	payload := map[string]any{"content": content}
	for k, v := range metadata {
		payload[k] = v
	}
	body := map[string]any{
		"points": []map[string]any{{
			"id":      id,
			"vector":  embedding,
			"payload": payload,
		}},
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	if err := q.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return "", err
	}
	return id, nil
}

type qdrantPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
	Vector  []float32      `json:"vector"`
}

// Search runs a similarity query and maps points into knowledge hits.
func (q *QdrantIndex) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]model.KnowledgeHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector":       queryEmbedding,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  true,
	}
	var points []qdrantPoint
	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.do(ctx, http.MethodPost, path, body, &points); err != nil {
		return nil, err
	}
	hits := make([]model.KnowledgeHit, 0, len(points))
	for i, p := range points {
		hits = append(hits, pointToHit(p, i+1))
	}
	return hits, nil
}

// GetByID fetches a single point.
func (q *QdrantIndex) GetByID(ctx context.Context, id string) (model.KnowledgeHit, error) {
	var point qdrantPoint
	path := fmt.Sprintf("/collections/%s/points/%s", q.collection, url.PathEscape(id))
	if err := q.do(ctx, http.MethodGet, path, nil, &point); err != nil {
		if strings.Contains(err.Error(), "Not found") || strings.Contains(err.Error(), "404") {
			return model.KnowledgeHit{}, fmt.Errorf("vector entry %s: %w", id, model.ErrNotFound)
		}
		return model.KnowledgeHit{}, err
	}
	return pointToHit(point, 0), nil
}

// Delete removes a point.
func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	body := map[string]any{"points": []string{id}}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collection)
	return q.do(ctx, http.MethodPost, path, body, nil)
}

// Count reports the number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	var result struct {
		Count int `json:"count"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", q.collection)
	if err := q.do(ctx, http.MethodPost, path, map[string]any{"exact": true}, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// Clear drops and recreates the collection.
func (q *QdrantIndex) Clear(ctx context.Context) error {
	if err := q.do(ctx, http.MethodDelete, fmt.Sprintf("/collections/%s", q.collection), nil, nil); err != nil {
		return err
	}
	return q.CreateSchema(ctx)
}

// qdrantEnvelope wraps every Qdrant REST response.
type qdrantEnvelope struct {
	Status json.RawMessage `json:"status"`
	Result json.RawMessage `json:"result"`
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode qdrant request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w: %v", method, path, model.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("qdrant %s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	if len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

func pointToHit(p qdrantPoint, rank int) model.KnowledgeHit {
	hit := model.KnowledgeHit{
		VectorID:  fmt.Sprintf("%v", p.ID),
		Score:     p.Score,
		Rank:      rank,
		Embedding: p.Vector,
	}
	if p.Payload != nil {
		hit.Content = model.StringFromAny(p.Payload["content"])
		meta := model.CloneMetadata(p.Payload)
		delete(meta, "content")
		if len(meta) > 0 {
			hit.Metadata = meta
		}
	}
	return hit
}
