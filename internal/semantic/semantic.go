// Package semantic adapts an external nearest-neighbor service into the
// narrow capability the retrieval path needs: given a query embedding,
// return top-K chunk ids with similarity scores. Scores stay in the
// backend's native scale; rescaling is the fusion layer's job so all
// normalization policy lives in one place.
package semantic

import "context"

// Candidate is one scored hit from the vector backend.
type Candidate struct {
	DocID string
	Score float64
}

// Point is one chunk vector queued for upsert, with enough payload to
// recover the chunk id and book scope at search time.
type Point struct {
	DocID  string
	Book   string
	Text   string
	Vector []float32
}

// Searcher is the read side of the vector backend. bookSlug narrows the
// search to one book's chunks; empty means the whole collection. Scoping
// happens inside the backend so the limit is spent on in-scope hits.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int, bookSlug string) ([]Candidate, error)
}

// Writer is the ingestion side: collection bootstrap and chunk upserts.
type Writer interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []Point) error
	DeleteBook(ctx context.Context, bookSlug string) error
}
