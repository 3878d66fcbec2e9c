package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bookquest-ai/bookquest/internal/bookstore"
	"github.com/bookquest-ai/bookquest/internal/classify"
	"github.com/bookquest-ai/bookquest/internal/retrieval"
	apperrors "github.com/bookquest-ai/bookquest/pkg/errors"
)

type fakeRetriever struct {
	lastQuery string
	lastBook  string
	lastLimit int
	resp      *retrieval.Response
	err       error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query, bookScope string, limit int) (*retrieval.Response, error) {
	f.lastQuery = query
	f.lastBook = bookScope
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeBooks struct {
	books map[string]bookstore.Book
}

func (f *fakeBooks) ResolveBook(ctx context.Context, slugOrTitle string) (bookstore.Book, error) {
	if b, ok := f.books[slugOrTitle]; ok {
		return b, nil
	}
	return bookstore.Book{}, apperrors.ErrBookNotFound
}

func (f *fakeBooks) ListBooks(ctx context.Context) ([]bookstore.Book, error) {
	out := make([]bookstore.Book, 0, len(f.books))
	for _, b := range f.books {
		out = append(out, b)
	}
	return out, nil
}

func testResponse() *retrieval.Response {
	return &retrieval.Response{
		Query:    "cyclops cave",
		Category: classify.Keyword,
		Strategy: "weighted",
		Results: []retrieval.Result{
			{DocID: "odyssey_09_000_abc1234", Score: 0.97, Text: "the Cyclops"},
		},
	}
}

type fakeSummaries struct {
	bookSummaries    map[string]string
	chapterSummaries map[string]string
}

func newFakeSummaries() *fakeSummaries {
	return &fakeSummaries{
		bookSummaries:    make(map[string]string),
		chapterSummaries: make(map[string]string),
	}
}

func (f *fakeSummaries) GetBookSummary(ctx context.Context, bookSlug string) (string, error) {
	return f.bookSummaries[bookSlug], nil
}

func (f *fakeSummaries) SaveBookSummary(ctx context.Context, bookSlug, summary string) error {
	f.bookSummaries[bookSlug] = summary
	return nil
}

func (f *fakeSummaries) GetChapterSummary(ctx context.Context, bookSlug string, chapter int) (string, error) {
	return f.chapterSummaries[fmt.Sprintf("%s/%d", bookSlug, chapter)], nil
}

func (f *fakeSummaries) SaveChapterSummary(ctx context.Context, bookSlug string, chapter int, summary string) error {
	f.chapterSummaries[fmt.Sprintf("%s/%d", bookSlug, chapter)] = summary
	return nil
}

func newTestHandler(r *fakeRetriever, b *fakeBooks) *Handler {
	return New(r, b, newFakeSummaries(), nil, 7, 25)
}

func TestRetrieveSuccess(t *testing.T) {
	ret := &fakeRetriever{resp: testResponse()}
	h := newTestHandler(ret, &fakeBooks{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/retrieve?q=cyclops+cave", nil)
	rec := httptest.NewRecorder()
	h.Retrieve(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	var resp retrieval.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].DocID != "odyssey_09_000_abc1234" {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
	if ret.lastLimit != 7 {
		t.Errorf("limit = %d, want default 7", ret.lastLimit)
	}
}

func TestRetrieveMissingQuery(t *testing.T) {
	h := newTestHandler(&fakeRetriever{resp: testResponse()}, &fakeBooks{})
	rec := httptest.NewRecorder()
	h.Retrieve(rec, httptest.NewRequest(http.MethodGet, "/api/v1/retrieve", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRetrieveLimitHandling(t *testing.T) {
	tests := []struct {
		name       string
		param      string
		wantStatus int
		wantLimit  int
	}{
		{"explicit", "limit=3", http.StatusOK, 3},
		{"capped at max", "limit=100", http.StatusOK, 25},
		{"zero rejected", "limit=0", http.StatusBadRequest, 0},
		{"garbage rejected", "limit=ten", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ret := &fakeRetriever{resp: testResponse()}
			h := newTestHandler(ret, &fakeBooks{})
			rec := httptest.NewRecorder()
			h.Retrieve(rec, httptest.NewRequest(http.MethodGet, "/api/v1/retrieve?q=whale&"+tt.param, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && ret.lastLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", ret.lastLimit, tt.wantLimit)
			}
		})
	}
}

func TestRetrieveBookScope(t *testing.T) {
	ret := &fakeRetriever{resp: testResponse()}
	books := &fakeBooks{books: map[string]bookstore.Book{
		"The Odyssey": {Slug: "odyssey", Title: "The Odyssey"},
	}}
	h := newTestHandler(ret, books)

	rec := httptest.NewRecorder()
	h.Retrieve(rec, httptest.NewRequest(http.MethodGet, "/api/v1/retrieve?q=cyclops&book=The+Odyssey", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ret.lastBook != "odyssey" {
		t.Errorf("book scope = %q, want resolved slug odyssey", ret.lastBook)
	}
}

func TestRetrieveUnknownBook(t *testing.T) {
	h := newTestHandler(&fakeRetriever{resp: testResponse()}, &fakeBooks{})
	rec := httptest.NewRecorder()
	h.Retrieve(rec, httptest.NewRequest(http.MethodGet, "/api/v1/retrieve?q=cyclops&book=nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRetrieveEngineFailure(t *testing.T) {
	h := newTestHandler(&fakeRetriever{err: errors.New("both retrievers failed")}, &fakeBooks{})
	rec := httptest.NewRecorder()
	h.Retrieve(rec, httptest.NewRequest(http.MethodGet, "/api/v1/retrieve?q=cyclops", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestBooksListing(t *testing.T) {
	books := &fakeBooks{books: map[string]bookstore.Book{
		"odyssey": {Slug: "odyssey", Title: "The Odyssey", Author: "Homer", ChunkCount: 120},
	}}
	h := newTestHandler(&fakeRetriever{}, books)

	rec := httptest.NewRecorder()
	h.Books(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out struct {
		Books []struct {
			Slug       string `json:"slug"`
			ChunkCount int    `json:"chunk_count"`
		} `json:"books"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(out.Books) != 1 || out.Books[0].Slug != "odyssey" || out.Books[0].ChunkCount != 120 {
		t.Errorf("unexpected listing: %+v", out.Books)
	}
}

func TestBookSummaryRoundTrip(t *testing.T) {
	books := &fakeBooks{books: map[string]bookstore.Book{
		"odyssey": {Slug: "odyssey", Title: "The Odyssey"},
	}}
	summaries := newFakeSummaries()
	h := New(&fakeRetriever{}, books, summaries, nil, 7, 25)

	put := httptest.NewRequest(http.MethodPut, "/api/v1/books/odyssey/summary",
		strings.NewReader(`{"summary":"A long voyage home."}`))
	put.SetPathValue("book", "odyssey")
	rec := httptest.NewRecorder()
	h.BookSummary(rec, put)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	get := httptest.NewRequest(http.MethodGet, "/api/v1/books/odyssey/summary", nil)
	get.SetPathValue("book", "odyssey")
	rec = httptest.NewRecorder()
	h.BookSummary(rec, get)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out["summary"] != "A long voyage home." {
		t.Errorf("summary = %q", out["summary"])
	}
}

func TestBookSummaryNotFound(t *testing.T) {
	books := &fakeBooks{books: map[string]bookstore.Book{
		"odyssey": {Slug: "odyssey", Title: "The Odyssey"},
	}}
	h := New(&fakeRetriever{}, books, newFakeSummaries(), nil, 7, 25)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/books/odyssey/summary", nil)
	req.SetPathValue("book", "odyssey")
	rec := httptest.NewRecorder()
	h.BookSummary(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no summary stored", rec.Code)
	}
}

func TestChapterSummaryBadChapter(t *testing.T) {
	books := &fakeBooks{books: map[string]bookstore.Book{
		"odyssey": {Slug: "odyssey", Title: "The Odyssey"},
	}}
	h := New(&fakeRetriever{}, books, newFakeSummaries(), nil, 7, 25)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/books/odyssey/chapters/nine/summary", nil)
	req.SetPathValue("book", "odyssey")
	req.SetPathValue("chapter", "nine")
	rec := httptest.NewRecorder()
	h.ChapterSummary(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCacheInvalidateWithoutCache(t *testing.T) {
	h := newTestHandler(&fakeRetriever{}, &fakeBooks{})
	rec := httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
