package semantic

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/bookquest-ai/bookquest/pkg/errors"
	"github.com/bookquest-ai/bookquest/pkg/resilience"
)

// BreakerSearcher guards a Searcher with a circuit breaker so a flapping
// vector backend stops eating a network timeout per query. An open circuit
// surfaces as ErrVectorBackendUnavailable, which the retrieval layer already
// treats as "degrade to lexical-only".
type BreakerSearcher struct {
	inner   Searcher
	breaker *resilience.CircuitBreaker
}

func NewBreakerSearcher(inner Searcher, cfg resilience.CircuitBreakerConfig) *BreakerSearcher {
	return &BreakerSearcher{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker("vector-backend", cfg),
	}
}

func (b *BreakerSearcher) Search(ctx context.Context, embedding []float32, topK int, bookSlug string) ([]Candidate, error) {
	var candidates []Candidate
	err := b.breaker.Execute(func() error {
		var searchErr error
		candidates, searchErr = b.inner.Search(ctx, embedding, topK, bookSlug)
		return searchErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrVectorBackendUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// State exposes the breaker state for health reporting.
func (b *BreakerSearcher) State() resilience.State {
	return b.breaker.State()
}
