// Package bookstore is the system of record for books and their chunks.
// The lexical index and the vector collection are both derived views; a
// rebuild always starts from the rows here.
package bookstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/bookquest-ai/bookquest/pkg/errors"
	"github.com/bookquest-ai/bookquest/pkg/postgres"
)

// Book is one ingested work.
type Book struct {
	Slug       string
	Title      string
	Author     string
	ChunkCount int
	IngestedAt time.Time
}

// Chunk is one retrievable slice of book text. Immutable once stored;
// re-ingesting a book replaces its chunks wholesale.
type Chunk struct {
	ID         string
	BookSlug   string
	Chapter    int
	Ordinal    int
	Text       string
	TokenCount int
	CharCount  int
}

// Store wraps the PostgreSQL tables behind typed operations.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "bookstore"),
	}
}

// EnsureSchema creates the tables when they do not exist yet. Idempotent;
// run once at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
			slug        TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			author      TEXT NOT NULL DEFAULT '',
			ingested_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id          TEXT PRIMARY KEY,
			book_slug   TEXT NOT NULL REFERENCES books(slug) ON DELETE CASCADE,
			chapter     INT NOT NULL,
			ordinal     INT NOT NULL,
			text        TEXT NOT NULL,
			token_count INT NOT NULL,
			char_count  INT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS chunks_book_idx ON chunks (book_slug, chapter, ordinal)`,
		`CREATE TABLE IF NOT EXISTS book_summaries (
			book_slug  TEXT PRIMARY KEY REFERENCES books(slug) ON DELETE CASCADE,
			summary    TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS chapter_summaries (
			book_slug  TEXT NOT NULL REFERENCES books(slug) ON DELETE CASCADE,
			chapter    INT NOT NULL,
			summary    TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (book_slug, chapter)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

// UpsertBook inserts or refreshes a book row.
func (s *Store) UpsertBook(ctx context.Context, book Book) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO books (slug, title, author, ingested_at) VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (slug) DO UPDATE SET title = EXCLUDED.title, author = EXCLUDED.author, ingested_at = NOW()`,
		book.Slug, book.Title, book.Author,
	)
	if err != nil {
		return fmt.Errorf("upserting book %s: %w", book.Slug, err)
	}
	return nil
}

// ReplaceChunks swaps out a book's chunks in one transaction. Readers never
// observe a half-replaced book.
func (s *Store) ReplaceChunks(ctx context.Context, bookSlug string, chunks []Chunk) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE book_slug = $1`, bookSlug); err != nil {
			return fmt.Errorf("deleting old chunks: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO chunks (id, book_slug, chapter, ordinal, text, token_count, char_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
		if err != nil {
			return fmt.Errorf("preparing chunk insert: %w", err)
		}
		defer stmt.Close()
		for _, c := range chunks {
			if _, err := stmt.ExecContext(ctx, c.ID, bookSlug, c.Chapter, c.Ordinal, c.Text, c.TokenCount, c.CharCount); err != nil {
				return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("chunks replaced", "book", bookSlug, "count", len(chunks))
	return nil
}

// ListChunks returns every chunk across all books, in stable (book, chapter,
// ordinal) order. This is the corpus the lexical index is built from.
func (s *Store) ListChunks(ctx context.Context) ([]Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT id, book_slug, chapter, ordinal, text, token_count, char_count
		 FROM chunks ORDER BY book_slug, chapter, ordinal`)
}

// ListBookChunks returns one book's chunks in chapter/ordinal order.
func (s *Store) ListBookChunks(ctx context.Context, bookSlug string) ([]Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT id, book_slug, chapter, ordinal, text, token_count, char_count
		 FROM chunks WHERE book_slug = $1 ORDER BY chapter, ordinal`, bookSlug)
}

// GetChunksByIDs fetches chunk rows for the given ids, keyed by id. Missing
// ids are simply absent from the map; the caller decides whether that is a
// problem.
func (s *Store) GetChunksByIDs(ctx context.Context, ids []string) (map[string]Chunk, error) {
	if len(ids) == 0 {
		return map[string]Chunk{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	chunks, err := s.queryChunks(ctx,
		`SELECT id, book_slug, chapter, ordinal, text, token_count, char_count
		 FROM chunks WHERE id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	return byID, nil
}

// ResolveBook finds a book by exact slug, then by case-insensitive title
// match. ErrBookNotFound when neither matches.
func (s *Store) ResolveBook(ctx context.Context, slugOrTitle string) (Book, error) {
	var b Book
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT b.slug, b.title, b.author, b.ingested_at,
		        (SELECT COUNT(*) FROM chunks c WHERE c.book_slug = b.slug)
		 FROM books b
		 WHERE b.slug = $1 OR LOWER(b.title) = LOWER($1)
		 ORDER BY (b.slug = $1) DESC
		 LIMIT 1`,
		slugOrTitle,
	).Scan(&b.Slug, &b.Title, &b.Author, &b.IngestedAt, &b.ChunkCount)
	if err == sql.ErrNoRows {
		return Book{}, fmt.Errorf("%w: %s", apperrors.ErrBookNotFound, slugOrTitle)
	}
	if err != nil {
		return Book{}, fmt.Errorf("resolving book %s: %w", slugOrTitle, err)
	}
	return b, nil
}

// ListBooks returns all books with their chunk counts, newest first.
func (s *Store) ListBooks(ctx context.Context) ([]Book, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT b.slug, b.title, b.author, b.ingested_at,
		        (SELECT COUNT(*) FROM chunks c WHERE c.book_slug = b.slug)
		 FROM books b ORDER BY b.ingested_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.Slug, &b.Title, &b.Author, &b.IngestedAt, &b.ChunkCount); err != nil {
			return nil, fmt.Errorf("scanning book row: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// SaveBookSummary stores or refreshes the whole-book summary.
func (s *Store) SaveBookSummary(ctx context.Context, bookSlug, summary string) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO book_summaries (book_slug, summary, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (book_slug) DO UPDATE SET summary = EXCLUDED.summary, updated_at = NOW()`,
		bookSlug, summary,
	)
	if err != nil {
		return fmt.Errorf("saving book summary for %s: %w", bookSlug, err)
	}
	return nil
}

// GetBookSummary returns the stored summary, or "" when none exists.
func (s *Store) GetBookSummary(ctx context.Context, bookSlug string) (string, error) {
	var summary string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT summary FROM book_summaries WHERE book_slug = $1`, bookSlug,
	).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading book summary for %s: %w", bookSlug, err)
	}
	return summary, nil
}

// SaveChapterSummary stores or refreshes one chapter's summary.
func (s *Store) SaveChapterSummary(ctx context.Context, bookSlug string, chapter int, summary string) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO chapter_summaries (book_slug, chapter, summary, updated_at) VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (book_slug, chapter) DO UPDATE SET summary = EXCLUDED.summary, updated_at = NOW()`,
		bookSlug, chapter, summary,
	)
	if err != nil {
		return fmt.Errorf("saving chapter summary for %s ch %d: %w", bookSlug, chapter, err)
	}
	return nil
}

// GetChapterSummary returns one chapter's summary, or "" when none exists.
func (s *Store) GetChapterSummary(ctx context.Context, bookSlug string, chapter int) (string, error) {
	var summary string
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT summary FROM chapter_summaries WHERE book_slug = $1 AND chapter = $2`,
		bookSlug, chapter,
	).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading chapter summary for %s ch %d: %w", bookSlug, chapter, err)
	}
	return summary, nil
}

func (s *Store) queryChunks(ctx context.Context, query string, args ...any) ([]Chunk, error) {
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.BookSlug, &c.Chapter, &c.Ordinal, &c.Text, &c.TokenCount, &c.CharCount); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
