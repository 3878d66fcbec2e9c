package semantic

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemorySearcher is an in-process Searcher and Writer backed by a slice of
// points and brute-force cosine similarity. It exists for tests and for
// running without a vector backend.
type MemorySearcher struct {
	mu     sync.RWMutex
	points map[string]Point
}

func NewMemorySearcher() *MemorySearcher {
	return &MemorySearcher{points: make(map[string]Point)}
}

func (m *MemorySearcher) Search(_ context.Context, embedding []float32, topK int, bookSlug string) ([]Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]Candidate, 0, len(m.points))
	for _, p := range m.points {
		if bookSlug != "" && p.Book != bookSlug {
			continue
		}
		candidates = append(candidates, Candidate{DocID: p.DocID, Score: cosine(embedding, p.Vector)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].DocID < candidates[j].DocID
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (m *MemorySearcher) EnsureCollection(context.Context) error { return nil }

func (m *MemorySearcher) Upsert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.DocID] = p
	}
	return nil
}

func (m *MemorySearcher) DeleteBook(_ context.Context, bookSlug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.Book == bookSlug || strings.HasPrefix(id, bookSlug+"_") {
			delete(m.points, id)
		}
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
