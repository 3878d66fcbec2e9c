package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/bookquest-ai/bookquest/internal/bookstore"
	"github.com/bookquest-ai/bookquest/internal/ingest"
	"github.com/bookquest-ai/bookquest/pkg/kafka"
)

type fakeStore struct {
	books     []bookstore.Book
	chunks    map[string][]bookstore.Chunk
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{chunks: make(map[string][]bookstore.Chunk)}
}

func (f *fakeStore) UpsertBook(_ context.Context, book bookstore.Book) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.books = append(f.books, book)
	return nil
}

func (f *fakeStore) ReplaceChunks(_ context.Context, slug string, chunks []bookstore.Chunk) error {
	f.chunks[slug] = chunks
	return nil
}

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (f *fakeProducer) Publish(_ context.Context, event kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func TestIngestStoresAndPublishes(t *testing.T) {
	store := newFakeStore()
	producer := &fakeProducer{}
	pub := New(store, producer)

	resp, err := pub.Ingest(context.Background(), &ingest.IngestRequest{
		Slug:  "moby-dick",
		Title: "Moby Dick",
		Text:  "CHAPTER I.\nCall me Ishmael.\nCHAPTER II.\nI stuffed a shirt or two into my bag.",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if resp.Status != "accepted" || resp.ChunkCount != 2 {
		t.Errorf("response = %+v", resp)
	}
	if len(store.books) != 1 || store.books[0].Slug != "moby-dick" {
		t.Errorf("book not stored: %v", store.books)
	}
	if len(store.chunks["moby-dick"]) != 2 {
		t.Errorf("chunks not stored: %v", store.chunks)
	}
	if len(producer.events) != 1 {
		t.Fatalf("got %d events, want 1", len(producer.events))
	}
	if producer.events[0].Key != "moby-dick" {
		t.Errorf("event key = %q, want the slug", producer.events[0].Key)
	}
	event, ok := producer.events[0].Value.(ingest.BookIngestedEvent)
	if !ok {
		t.Fatalf("event value is %T", producer.events[0].Value)
	}
	if event.ChunkCount != 2 {
		t.Errorf("event chunk count = %d, want 2", event.ChunkCount)
	}
}

func TestIngestEmptyTextAfterChunking(t *testing.T) {
	pub := New(newFakeStore(), &fakeProducer{})
	_, err := pub.Ingest(context.Background(), &ingest.IngestRequest{
		Slug: "blank", Title: "Blank", Text: "   \n ",
	})
	if err == nil {
		t.Fatal("expected error for text that chunks to nothing")
	}
}

func TestIngestPublishFailureSurfaces(t *testing.T) {
	store := newFakeStore()
	pub := New(store, &fakeProducer{err: errors.New("broker down")})
	_, err := pub.Ingest(context.Background(), &ingest.IngestRequest{
		Slug: "moby-dick", Title: "Moby Dick", Text: "Call me Ishmael.",
	})
	if err == nil {
		t.Fatal("expected publish failure to surface")
	}
	// Rows were written before the publish attempt.
	if len(store.chunks["moby-dick"]) == 0 {
		t.Error("chunks should be stored even when publish fails")
	}
}
