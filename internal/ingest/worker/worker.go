// Package worker rebuilds the derived indexes when a book is ingested. It
// consumes BookIngestedEvent messages, rebuilds the lexical index from the
// store, persists the new blob, swaps the active snapshot, and syncs the
// book's vectors into the vector backend.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bookquest-ai/bookquest/internal/bookstore"
	"github.com/bookquest-ai/bookquest/internal/embedding"
	"github.com/bookquest-ai/bookquest/internal/ingest"
	"github.com/bookquest-ai/bookquest/internal/lexical"
	"github.com/bookquest-ai/bookquest/internal/retrieval"
	"github.com/bookquest-ai/bookquest/internal/semantic"
	apperrors "github.com/bookquest-ai/bookquest/pkg/errors"
	"github.com/bookquest-ai/bookquest/pkg/metrics"
	"github.com/bookquest-ai/bookquest/pkg/resilience"
)

// ChunkSource is the corpus the indexes are rebuilt from.
type ChunkSource interface {
	ListChunks(ctx context.Context) ([]bookstore.Chunk, error)
	ListBookChunks(ctx context.Context, bookSlug string) ([]bookstore.Chunk, error)
}

// CacheInvalidator drops cached retrieve responses after a snapshot swap.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type Worker struct {
	store          ChunkSource
	holder         *retrieval.IndexHolder
	vectors        semantic.Writer
	embedder       embedding.Embedder
	cache          CacheInvalidator
	params         lexical.Params
	indexPath      string
	rebuildTimeout time.Duration
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// New builds a Worker. vectors, embedder, cache, and metrics may be nil;
// the corresponding steps are skipped.
func New(
	store ChunkSource,
	holder *retrieval.IndexHolder,
	vectors semantic.Writer,
	embedder embedding.Embedder,
	cache CacheInvalidator,
	params lexical.Params,
	indexPath string,
	rebuildTimeout time.Duration,
	m *metrics.Metrics,
) *Worker {
	return &Worker{
		store:          store,
		holder:         holder,
		vectors:        vectors,
		embedder:       embedder,
		cache:          cache,
		params:         params,
		indexPath:      indexPath,
		rebuildTimeout: rebuildTimeout,
		metrics:        m,
		logger:         slog.Default().With("component", "index-worker"),
	}
}

// HandleMessage is the Kafka consumer callback for book-ingested events.
// Returning an error leaves the message uncommitted for redelivery.
func (w *Worker) HandleMessage(ctx context.Context, key, value []byte) error {
	var event ingest.BookIngestedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		// A malformed event will never parse on redelivery either.
		w.logger.Error("dropping undecodable event", "key", string(key), "error", err)
		return nil
	}
	w.logger.Info("book-ingested event received",
		"slug", event.Slug,
		"chunks", event.ChunkCount,
	)
	return resilience.WithTimeout(ctx, w.rebuildTimeout, "index-rebuild", func(ctx context.Context) error {
		if err := w.RebuildLexical(ctx); err != nil {
			return err
		}
		if err := w.SyncBookVectors(ctx, event.Slug); err != nil {
			return err
		}
		if w.cache != nil {
			if err := w.cache.Invalidate(ctx); err != nil {
				w.logger.Warn("cache invalidation failed after rebuild", "error", err)
			}
		}
		return nil
	})
}

// RebuildLexical builds a fresh index over the whole corpus, persists it,
// and installs it as the active snapshot. The previous snapshot stays
// untouched for queries already holding it. An empty corpus leaves the
// current snapshot and the on-disk blob as they are.
func (w *Worker) RebuildLexical(ctx context.Context) error {
	var chunks []bookstore.Chunk
	err := resilience.Retry(ctx, "load-corpus", resilience.RetryConfig{}, func() error {
		var loadErr error
		chunks, loadErr = w.store.ListChunks(ctx)
		return loadErr
	})
	if err != nil {
		w.countBuild("error")
		return fmt.Errorf("loading corpus: %w", err)
	}

	corpus := make([]lexical.Document, len(chunks))
	for i, c := range chunks {
		corpus[i] = lexical.Document{ID: c.ID, Text: c.Text}
	}
	ix, err := lexical.Build(corpus, w.params)
	if err != nil {
		w.countBuild("error")
		return fmt.Errorf("building lexical index: %w", err)
	}
	if w.indexPath != "" {
		if err := ix.Persist(w.indexPath); err != nil {
			w.countBuild("error")
			return fmt.Errorf("persisting lexical index: %w", err)
		}
	}
	w.holder.Swap(ix)

	w.countBuild("ok")
	if w.metrics != nil {
		w.metrics.IndexedDocuments.Set(float64(ix.DocCount()))
	}
	w.logger.Info("lexical index rebuilt",
		"documents", ix.DocCount(),
		"avg_doc_length", ix.AvgDocLength(),
		"path", w.indexPath,
	)
	return nil
}

// SyncBookVectors replaces one book's points in the vector backend with
// freshly embedded chunks.
func (w *Worker) SyncBookVectors(ctx context.Context, bookSlug string) error {
	if w.vectors == nil || w.embedder == nil {
		return nil
	}
	chunks, err := w.store.ListBookChunks(ctx, bookSlug)
	if err != nil {
		return fmt.Errorf("loading chunks for %s: %w", bookSlug, err)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		w.countUpsert("error")
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	points := make([]semantic.Point, len(chunks))
	for i, c := range chunks {
		points[i] = semantic.Point{DocID: c.ID, Book: c.BookSlug, Text: c.Text, Vector: vectors[i]}
	}

	if err := w.vectors.EnsureCollection(ctx); err != nil {
		w.countUpsert("error")
		return fmt.Errorf("ensuring collection: %w", err)
	}
	if err := w.vectors.DeleteBook(ctx, bookSlug); err != nil {
		w.countUpsert("error")
		return fmt.Errorf("clearing old vectors for %s: %w", bookSlug, err)
	}
	if err := w.vectors.Upsert(ctx, points); err != nil {
		w.countUpsert("error")
		return fmt.Errorf("upserting vectors for %s: %w", bookSlug, err)
	}
	w.countUpsert("ok")
	w.logger.Info("book vectors synced", "slug", bookSlug, "points", len(points))
	return nil
}

// Bootstrap installs an index snapshot at startup: load the persisted blob
// when one exists, otherwise rebuild from the store. A corrupt blob fails
// closed; the process should not come up quietly serving nothing.
func (w *Worker) Bootstrap(ctx context.Context) error {
	if w.indexPath != "" {
		ix, err := lexical.Load(w.indexPath)
		if err == nil {
			w.holder.Swap(ix)
			if w.metrics != nil {
				w.metrics.IndexedDocuments.Set(float64(ix.DocCount()))
			}
			w.logger.Info("lexical index loaded",
				"documents", ix.DocCount(),
				"path", w.indexPath,
			)
			return nil
		}
		if errors.Is(err, apperrors.ErrIndexCorrupt) {
			return fmt.Errorf("refusing to start with corrupt index blob: %w", err)
		}
		if !errors.Is(err, apperrors.ErrIndexNotFound) {
			return fmt.Errorf("loading lexical index: %w", err)
		}
		w.logger.Info("no persisted index, rebuilding from store", "path", w.indexPath)
	}
	if err := w.RebuildLexical(ctx); err != nil {
		if errors.Is(err, apperrors.ErrEmptyCorpus) {
			w.logger.Warn("corpus is empty, starting without a lexical index")
			return nil
		}
		return err
	}
	return nil
}

func (w *Worker) countBuild(status string) {
	if w.metrics != nil {
		w.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	}
}

func (w *Worker) countUpsert(status string) {
	if w.metrics != nil {
		w.metrics.VectorUpsertsTotal.WithLabelValues(status).Inc()
	}
}
