// Package handler exposes the retrieval engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bookquest-ai/bookquest/internal/bookstore"
	"github.com/bookquest-ai/bookquest/internal/retrieval"
	"github.com/bookquest-ai/bookquest/internal/retrieval/cache"
	apperrors "github.com/bookquest-ai/bookquest/pkg/errors"
	"github.com/bookquest-ai/bookquest/pkg/logger"
)

// Retriever is the engine's single public operation.
type Retriever interface {
	Retrieve(ctx context.Context, query, bookScope string, limit int) (*retrieval.Response, error)
}

// BookResolver maps a caller-supplied slug or title to a known book.
type BookResolver interface {
	ResolveBook(ctx context.Context, slugOrTitle string) (bookstore.Book, error)
	ListBooks(ctx context.Context) ([]bookstore.Book, error)
}

// SummaryStore reads and writes the book and chapter summaries the agent
// layer maintains alongside retrieval.
type SummaryStore interface {
	GetBookSummary(ctx context.Context, bookSlug string) (string, error)
	SaveBookSummary(ctx context.Context, bookSlug, summary string) error
	GetChapterSummary(ctx context.Context, bookSlug string, chapter int) (string, error)
	SaveChapterSummary(ctx context.Context, bookSlug string, chapter int, summary string) error
}

type Handler struct {
	retriever    Retriever
	books        BookResolver
	summaries    SummaryStore
	cache        *cache.QueryCache
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(retriever Retriever, books BookResolver, summaries SummaryStore, queryCache *cache.QueryCache, defaultLimit, maxResults int) *Handler {
	return &Handler{
		retriever:    retriever,
		books:        books,
		summaries:    summaries,
		cache:        queryCache,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "retrieve-handler"),
	}
}

// Retrieve handles GET /api/v1/retrieve?q=...&book=...&limit=N.
func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	bookScope := ""
	if bookParam := r.URL.Query().Get("book"); bookParam != "" {
		book, err := h.books.ResolveBook(ctx, bookParam)
		if err != nil {
			if errors.Is(err, apperrors.ErrBookNotFound) {
				h.writeError(w, http.StatusNotFound, "unknown book: "+bookParam)
				return
			}
			log.Error("book resolution failed", "book", bookParam, "error", err)
			h.writeError(w, http.StatusInternalServerError, "book lookup failed")
			return
		}
		bookScope = book.Slug
	}

	var (
		resp     *retrieval.Response
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		resp, cacheHit, err = h.cache.GetOrCompute(ctx, query, bookScope, limit, func() (*retrieval.Response, error) {
			return h.retriever.Retrieve(ctx, query, bookScope, limit)
		})
	} else {
		resp, err = h.retriever.Retrieve(ctx, query, bookScope, limit)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			h.writeError(w, http.StatusBadRequest, "invalid query")
			return
		}
		log.Error("retrieve failed", "query", query, "book", bookScope, "error", err)
		h.writeError(w, http.StatusBadGateway, "retrieval failed")
		return
	}

	log.Info("retrieve served",
		"query", query,
		"book", bookScope,
		"results", len(resp.Results),
		"cache_hit", cacheHit,
		"degraded", resp.Degraded,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// Books handles GET /api/v1/books.
func (h *Handler) Books(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.ListBooks(r.Context())
	if err != nil {
		h.logger.Error("listing books failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "listing books failed")
		return
	}
	type bookEntry struct {
		Slug       string `json:"slug"`
		Title      string `json:"title"`
		Author     string `json:"author,omitempty"`
		ChunkCount int    `json:"chunk_count"`
	}
	out := make([]bookEntry, len(books))
	for i, b := range books {
		out[i] = bookEntry{Slug: b.Slug, Title: b.Title, Author: b.Author, ChunkCount: b.ChunkCount}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"books": out})
}

// BookSummary handles GET and PUT /api/v1/books/{book}/summary.
func (h *Handler) BookSummary(w http.ResponseWriter, r *http.Request) {
	book, ok := h.resolvePathBook(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		summary, err := h.summaries.GetBookSummary(r.Context(), book.Slug)
		if err != nil {
			h.logger.Error("reading book summary failed", "book", book.Slug, "error", err)
			h.writeError(w, http.StatusInternalServerError, "reading summary failed")
			return
		}
		if summary == "" {
			h.writeError(w, http.StatusNotFound, "no summary for book: "+book.Slug)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"book": book.Slug, "summary": summary})
	case http.MethodPut:
		body, ok := h.decodeSummaryBody(w, r)
		if !ok {
			return
		}
		if err := h.summaries.SaveBookSummary(r.Context(), book.Slug, body); err != nil {
			h.logger.Error("saving book summary failed", "book", book.Slug, "error", err)
			h.writeError(w, http.StatusInternalServerError, "saving summary failed")
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	}
}

// ChapterSummary handles GET and PUT /api/v1/books/{book}/chapters/{chapter}/summary.
func (h *Handler) ChapterSummary(w http.ResponseWriter, r *http.Request) {
	book, ok := h.resolvePathBook(w, r)
	if !ok {
		return
	}
	chapter, err := strconv.Atoi(r.PathValue("chapter"))
	if err != nil || chapter < 0 {
		h.writeError(w, http.StatusBadRequest, "chapter must be a non-negative integer")
		return
	}
	switch r.Method {
	case http.MethodGet:
		summary, err := h.summaries.GetChapterSummary(r.Context(), book.Slug, chapter)
		if err != nil {
			h.logger.Error("reading chapter summary failed", "book", book.Slug, "chapter", chapter, "error", err)
			h.writeError(w, http.StatusInternalServerError, "reading summary failed")
			return
		}
		if summary == "" {
			h.writeError(w, http.StatusNotFound, "no summary for chapter")
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"book": book.Slug, "chapter": chapter, "summary": summary})
	case http.MethodPut:
		body, ok := h.decodeSummaryBody(w, r)
		if !ok {
			return
		}
		if err := h.summaries.SaveChapterSummary(r.Context(), book.Slug, chapter, body); err != nil {
			h.logger.Error("saving chapter summary failed", "book", book.Slug, "chapter", chapter, "error", err)
			h.writeError(w, http.StatusInternalServerError, "saving summary failed")
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	}
}

func (h *Handler) resolvePathBook(w http.ResponseWriter, r *http.Request) (bookstore.Book, bool) {
	param := r.PathValue("book")
	book, err := h.books.ResolveBook(r.Context(), param)
	if err != nil {
		if errors.Is(err, apperrors.ErrBookNotFound) {
			h.writeError(w, http.StatusNotFound, "unknown book: "+param)
			return bookstore.Book{}, false
		}
		h.logger.Error("book resolution failed", "book", param, "error", err)
		h.writeError(w, http.StatusInternalServerError, "book lookup failed")
		return bookstore.Book{}, false
	}
	return book, true
}

func (h *Handler) decodeSummaryBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Summary == "" {
		h.writeError(w, http.StatusBadRequest, "body must be JSON with a non-empty 'summary'")
		return "", false
	}
	return body.Summary, true
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
