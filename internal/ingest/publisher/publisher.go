// Package publisher persists an ingested book and announces it on Kafka.
// The index worker picks the event up and rebuilds the derived indexes, so
// the HTTP path stays fast: store rows, emit event, done.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bookquest-ai/bookquest/internal/bookstore"
	"github.com/bookquest-ai/bookquest/internal/ingest"
	"github.com/bookquest-ai/bookquest/internal/ingest/chunker"
	"github.com/bookquest-ai/bookquest/pkg/kafka"
)

// BookWriter is the storage surface the publisher needs.
type BookWriter interface {
	UpsertBook(ctx context.Context, book bookstore.Book) error
	ReplaceChunks(ctx context.Context, bookSlug string, chunks []bookstore.Chunk) error
}

// EventProducer publishes a single keyed event.
type EventProducer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Publisher struct {
	store    BookWriter
	producer EventProducer
	chunker  *chunker.Chunker
	logger   *slog.Logger
}

func New(store BookWriter, producer EventProducer) *Publisher {
	return &Publisher{
		store:    store,
		producer: producer,
		chunker:  chunker.New(),
		logger:   slog.Default().With("component", "ingest-publisher"),
	}
}

// Ingest chunks the book, replaces its stored rows, and emits a
// BookIngestedEvent keyed by slug so re-ingestions of the same book stay
// ordered on one partition.
func (p *Publisher) Ingest(ctx context.Context, req *ingest.IngestRequest) (*ingest.IngestResponse, error) {
	chunks := p.chunker.Chunk(req.Slug, req.Text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("book %s produced no chunks", req.Slug)
	}

	book := bookstore.Book{Slug: req.Slug, Title: req.Title, Author: req.Author}
	if err := p.store.UpsertBook(ctx, book); err != nil {
		return nil, fmt.Errorf("storing book: %w", err)
	}
	if err := p.store.ReplaceChunks(ctx, req.Slug, chunks); err != nil {
		return nil, fmt.Errorf("storing chunks: %w", err)
	}

	event := ingest.BookIngestedEvent{
		Slug:       req.Slug,
		Title:      req.Title,
		ChunkCount: len(chunks),
		IngestedAt: time.Now().UTC(),
	}
	if err := p.producer.Publish(ctx, kafka.Event{Key: req.Slug, Value: event}); err != nil {
		// Rows are stored but no rebuild will run. Surface the error so
		// the caller can re-submit instead of silently serving a stale
		// index forever.
		return nil, fmt.Errorf("publishing book-ingested event: %w", err)
	}

	p.logger.Info("book ingested",
		"slug", req.Slug,
		"chunks", len(chunks),
	)
	return &ingest.IngestResponse{
		Slug:       req.Slug,
		ChunkCount: len(chunks),
		Status:     "accepted",
	}, nil
}
