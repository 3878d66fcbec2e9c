// Package ingest defines the request/response types and the Kafka event
// schema for the book ingestion pipeline. Ingestion replaces a book's
// chunks wholesale; there are no partial updates.
package ingest

import "time"

// IngestRequest is the JSON body accepted by the book ingestion endpoint.
// Text is the full book text; the chunker splits it into chapters and
// fixed-size chunks server-side.
type IngestRequest struct {
	Slug   string `json:"slug"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// IngestResponse is returned once the book's rows are persisted and the
// rebuild event is on its way.
type IngestResponse struct {
	Slug       string `json:"slug"`
	ChunkCount int    `json:"chunk_count"`
	Status     string `json:"status"`
}

// BookIngestedEvent is the Kafka payload produced after a book's chunks are
// stored. The index worker consumes it and rebuilds the derived indexes.
type BookIngestedEvent struct {
	Slug       string    `json:"slug"`
	Title      string    `json:"title"`
	ChunkCount int       `json:"chunk_count"`
	IngestedAt time.Time `json:"ingested_at"`
}
