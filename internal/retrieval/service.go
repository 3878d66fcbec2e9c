// Package retrieval is the hybrid search engine: it runs the lexical and
// vector retrievers concurrently, classifies the query, fuses the two
// candidate lists, and hydrates the survivors with chunk text. This is the
// one operation the tool layer calls.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bookquest-ai/bookquest/internal/bookstore"
	"github.com/bookquest-ai/bookquest/internal/classify"
	"github.com/bookquest-ai/bookquest/internal/embedding"
	"github.com/bookquest-ai/bookquest/internal/fusion"
	"github.com/bookquest-ai/bookquest/internal/lexical"
	"github.com/bookquest-ai/bookquest/internal/semantic"
	"github.com/bookquest-ai/bookquest/pkg/config"
	apperrors "github.com/bookquest-ai/bookquest/pkg/errors"
	"github.com/bookquest-ai/bookquest/pkg/logger"
	"github.com/bookquest-ai/bookquest/pkg/metrics"
)

// ChunkGetter hydrates fused doc ids with their stored text. Hydration is
// a join after scoring, never part of it.
type ChunkGetter interface {
	GetChunksByIDs(ctx context.Context, ids []string) (map[string]bookstore.Chunk, error)
}

// Result is one fused, hydrated hit.
type Result struct {
	DocID   string  `json:"doc_id"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
	Book    string  `json:"book,omitempty"`
	Chapter int     `json:"chapter,omitempty"`
}

// Response carries the fused ranking plus how it was produced. Degraded is
// set when one retriever failed and the other carried the query alone.
type Response struct {
	Query        string            `json:"query"`
	Book         string            `json:"book,omitempty"`
	Category     classify.Category `json:"category"`
	Strategy     string            `json:"strategy"`
	Degraded     bool              `json:"degraded"`
	FailedSource string            `json:"failed_source,omitempty"`
	Results      []Result          `json:"results"`
	TookMs       int64             `json:"took_ms"`
}

// Service wires the two retrievers, the classifier, and fusion together.
type Service struct {
	index     *IndexHolder
	vectors   semantic.Searcher
	embedder  embedding.Embedder
	chunks    ChunkGetter
	fusionCfg config.FusionConfig
	searchCfg config.SearchConfig
	metrics   *metrics.Metrics
}

func NewService(
	index *IndexHolder,
	vectors semantic.Searcher,
	embedder embedding.Embedder,
	chunks ChunkGetter,
	fusionCfg config.FusionConfig,
	searchCfg config.SearchConfig,
	m *metrics.Metrics,
) *Service {
	return &Service{
		index:     index,
		vectors:   vectors,
		embedder:  embedder,
		chunks:    chunks,
		fusionCfg: fusionCfg,
		searchCfg: searchCfg,
		metrics:   m,
	}
}

// Retrieve runs the full hybrid query path. bookScope narrows both
// retrievers to one book before any truncation happens, so the limit is
// spent entirely on in-scope documents; empty means the whole corpus.
// Zero results is a normal outcome, not an error. A hard error comes back
// only when both retrievers fail.
func (s *Service) Retrieve(ctx context.Context, query, bookScope string, limit int) (*Response, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", apperrors.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = s.searchCfg.DefaultLimit
	}
	if limit > s.searchCfg.MaxResults {
		limit = s.searchCfg.MaxResults
	}
	candidateCount := limit * s.fusionCfg.CandidateMultiplier

	// Both sub-searches are read-only and independent, so they run
	// concurrently; end-to-end latency is the slower of the two, not the
	// sum. Fusion is a join point: it waits for both outcomes.
	var (
		wg       sync.WaitGroup
		lexCands []fusion.Candidate
		lexErr   error
		vecCands []fusion.Candidate
		vecErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		lexCands, lexErr = s.searchLexical(query, bookScope, candidateCount)
	}()
	go func() {
		defer wg.Done()
		vecCands, vecErr = s.searchSemantic(ctx, query, bookScope, candidateCount)
	}()
	wg.Wait()

	if lexErr != nil && vecErr != nil {
		s.countRetrieval("error")
		return nil, fmt.Errorf("both retrievers failed: %w; %w", lexErr, vecErr)
	}

	resp := &Response{
		Query:    query,
		Book:     bookScope,
		Category: classify.Classify(query),
		Strategy: s.fusionCfg.Strategy,
	}
	if s.metrics != nil {
		s.metrics.QueryCategoryTotal.WithLabelValues(string(resp.Category)).Inc()
	}

	switch {
	case lexErr != nil:
		log.Warn("lexical retriever failed, degrading to vector-only", "error", lexErr)
		resp.Degraded = true
		resp.FailedSource = "lexical"
	case vecErr != nil:
		log.Warn("vector retriever failed, degrading to lexical-only", "error", vecErr)
		resp.Degraded = true
		resp.FailedSource = "semantic"
	}
	if resp.Degraded && s.metrics != nil {
		s.metrics.RetrievalsDegraded.WithLabelValues(resp.FailedSource).Inc()
	}

	var fused []fusion.Fused
	if s.fusionCfg.Strategy == config.StrategyWeighted {
		fused = fusion.Weighted(lexCands, vecCands, s.weightsFor(resp.Category))
	} else {
		fused = fusion.RRF(lexCands, vecCands, s.fusionCfg.RRFConstant)
	}
	if len(fused) > limit {
		fused = fused[:limit]
	}

	results, err := s.hydrate(ctx, fused)
	if err != nil {
		s.countRetrieval("error")
		return nil, err
	}
	resp.Results = results
	resp.TookMs = time.Since(start).Milliseconds()

	outcome := "ok"
	if len(results) == 0 {
		outcome = "zero_result"
	}
	s.countRetrieval(outcome)
	if s.metrics != nil {
		s.metrics.RetrievalLatency.WithLabelValues(resp.Strategy).Observe(time.Since(start).Seconds())
		s.metrics.RetrievalResults.Observe(float64(len(results)))
	}

	log.Info("retrieve completed",
		"query", query,
		"book", bookScope,
		"category", resp.Category,
		"strategy", resp.Strategy,
		"results", len(results),
		"degraded", resp.Degraded,
		"took_ms", resp.TookMs,
	)
	return resp, nil
}

func (s *Service) searchLexical(query, bookScope string, topK int) ([]fusion.Candidate, error) {
	snapshot := s.index.Get()
	if snapshot == nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrLexicalSearch, apperrors.ErrIndexNotFound)
	}
	var hits []lexical.Candidate
	if bookScope != "" {
		hits = snapshot.SearchBook(bookScope, query, topK)
	} else {
		hits = snapshot.Search(query, topK)
	}
	candidates := make([]fusion.Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = fusion.Candidate{DocID: h.DocID, Score: h.Score}
	}
	return candidates, nil
}

func (s *Service) searchSemantic(ctx context.Context, query, bookScope string, topK int) ([]fusion.Candidate, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", apperrors.ErrSemanticSearch, err)
	}
	hits, err := s.vectors.Search(ctx, vec, topK, bookScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSemanticSearch, err)
	}
	candidates := make([]fusion.Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = fusion.Candidate{DocID: h.DocID, Score: h.Score}
	}
	return candidates, nil
}

func (s *Service) weightsFor(category classify.Category) fusion.Weights {
	var w config.FusionWeights
	switch category {
	case classify.Keyword:
		w = s.fusionCfg.Keyword
	case classify.Conceptual:
		w = s.fusionCfg.Conceptual
	default:
		w = s.fusionCfg.Mixed
	}
	return fusion.Weights{Lexical: w.Lexical, Vector: w.Vector}
}

// hydrate joins fused ids against chunk storage. A chunk missing from
// storage keeps its ranking slot with empty text rather than silently
// shifting everything below it.
func (s *Service) hydrate(ctx context.Context, fused []fusion.Fused) ([]Result, error) {
	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.DocID
	}
	chunks, err := s.chunks.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrating results: %w", err)
	}

	results := make([]Result, len(fused))
	for i, f := range fused {
		results[i] = Result{DocID: f.DocID, Score: f.Score}
		if c, ok := chunks[f.DocID]; ok {
			results[i].Text = c.Text
			results[i].Book = c.BookSlug
			results[i].Chapter = c.Chapter
		}
	}
	return results, nil
}

func (s *Service) countRetrieval(outcome string) {
	if s.metrics != nil {
		s.metrics.RetrievalsTotal.WithLabelValues(outcome).Inc()
	}
}
