package semantic

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bookquest-ai/bookquest/pkg/config"
	apperrors "github.com/bookquest-ai/bookquest/pkg/errors"
)

// QdrantClient talks to a Qdrant instance over its REST API. It holds a
// connection handle and a collection name; the vectors themselves are owned
// by the backend.
type QdrantClient struct {
	baseURL    string
	collection string
	vectorSize int
	client     *http.Client
}

// NewQdrantClient builds a client from config, filling in defaults for
// zero values.
func NewQdrantClient(cfg config.QdrantConfig) *QdrantClient {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:6333"
	}
	if cfg.Collection == "" {
		cfg.Collection = "book_chunks"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &QdrantClient{
		baseURL:    cfg.URL,
		collection: cfg.Collection,
		vectorSize: cfg.VectorSize,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

type qdrantSearchRequest struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	Filter      *qdrantFilter `json:"filter,omitempty"`
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantCondition struct {
	Key   string      `json:"key"`
	Match qdrantMatch `json:"match"`
}

type qdrantMatch struct {
	Value string `json:"value"`
}

type qdrantSearchResponse struct {
	Result []struct {
		Score   float64 `json:"score"`
		Payload struct {
			ID   string `json:"id"`
			Book string `json:"book"`
			Text string `json:"text"`
		} `json:"payload"`
	} `json:"result"`
}

// Search runs a similarity query against the collection. A non-empty
// bookSlug becomes a payload filter evaluated inside the backend.
// Connectivity and protocol failures map to ErrVectorBackendUnavailable;
// a missing collection maps to ErrCollectionNotFound. No retries here:
// retry policy belongs to the caller.
func (q *QdrantClient) Search(ctx context.Context, embedding []float32, topK int, bookSlug string) ([]Candidate, error) {
	reqBody := qdrantSearchRequest{
		Vector:      embedding,
		Limit:       topK,
		WithPayload: true,
	}
	if bookSlug != "" {
		reqBody.Filter = &qdrantFilter{
			Must: []qdrantCondition{{Key: "book", Match: qdrantMatch{Value: bookSlug}}},
		}
	}

	var resp qdrantSearchResponse
	status, err := q.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", q.collection), reqBody, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrVectorBackendUnavailable, err)
	}
	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrCollectionNotFound, q.collection)
	case status != http.StatusOK:
		return nil, fmt.Errorf("%w: qdrant returned status %d", apperrors.ErrVectorBackendUnavailable, status)
	}

	candidates := make([]Candidate, 0, len(resp.Result))
	for _, hit := range resp.Result {
		if hit.Payload.ID == "" {
			continue
		}
		candidates = append(candidates, Candidate{DocID: hit.Payload.ID, Score: hit.Score})
	}
	return candidates, nil
}

// EnsureCollection creates the collection with a cosine distance config if
// it does not exist yet. Existing collections are left alone.
func (q *QdrantClient) EnsureCollection(ctx context.Context) error {
	status, err := q.do(ctx, http.MethodGet, "/collections/"+q.collection, nil, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrVectorBackendUnavailable, err)
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("%w: qdrant returned status %d", apperrors.ErrVectorBackendUnavailable, status)
	}

	createBody := map[string]any{
		"vectors": map[string]any{"size": q.vectorSize, "distance": "Cosine"},
	}
	status, err = q.do(ctx, http.MethodPut, "/collections/"+q.collection, createBody, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrVectorBackendUnavailable, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: creating collection: status %d", apperrors.ErrVectorBackendUnavailable, status)
	}
	return nil
}

type qdrantPoint struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Upsert writes chunk vectors into the collection, waiting for the write to
// land before returning.
func (q *QdrantClient) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := struct {
		Points []qdrantPoint `json:"points"`
	}{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		body.Points[i] = qdrantPoint{
			ID:     pointID(p.DocID),
			Vector: p.Vector,
			Payload: map[string]any{
				"id":   p.DocID,
				"book": p.Book,
				"text": p.Text,
			},
		}
	}

	status, err := q.do(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", q.collection), body, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrVectorBackendUnavailable, err)
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", apperrors.ErrCollectionNotFound, q.collection)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: upsert returned status %d", apperrors.ErrVectorBackendUnavailable, status)
	}
	return nil
}

// DeleteBook removes every point carrying the given book payload, used when
// a book is re-ingested wholesale.
func (q *QdrantClient) DeleteBook(ctx context.Context, bookSlug string) error {
	body := map[string]any{
		"filter": qdrantFilter{
			Must: []qdrantCondition{{Key: "book", Match: qdrantMatch{Value: bookSlug}}},
		},
	}
	status, err := q.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collection), body, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrVectorBackendUnavailable, err)
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", apperrors.ErrCollectionNotFound, q.collection)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: delete returned status %d", apperrors.ErrVectorBackendUnavailable, status)
	}
	return nil
}

func (q *QdrantClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
		return resp.StatusCode, nil
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// pointID derives Qdrant's numeric point id from a chunk id. Stable across
// re-ingestions so an upsert replaces the prior vector for the same chunk.
func pointID(docID string) uint64 {
	sum := md5.Sum([]byte(docID))
	n, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:16], 16, 64)
	return n % 1_000_000_000
}
