package chunker

import (
	"strings"
	"testing"
)

const twoChapterBook = `CHAPTER I.
Call me Ishmael. Some years ago, never mind how long precisely, I went to sea.
CHAPTER II.
I stuffed a shirt or two into my old carpet bag and started for Cape Horn.`

func TestChunkSplitsChapters(t *testing.T) {
	chunks := New().Chunk("moby-dick", twoChapterBook)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Chapter != 1 || chunks[1].Chapter != 2 {
		t.Errorf("chapters = %d, %d; want 1, 2", chunks[0].Chapter, chunks[1].Chapter)
	}
	if !strings.Contains(chunks[0].Text, "Ishmael") {
		t.Errorf("chapter 1 text lost: %q", chunks[0].Text)
	}
	for _, c := range chunks {
		if c.BookSlug != "moby-dick" {
			t.Errorf("book slug = %q", c.BookSlug)
		}
		if c.TokenCount == 0 || c.CharCount == 0 {
			t.Errorf("chunk %s missing counts: %+v", c.ID, c)
		}
	}
}

func TestChunkIDFormat(t *testing.T) {
	chunks := New().Chunk("moby-dick", twoChapterBook)
	id := chunks[0].ID
	parts := strings.Split(id, "_")
	if len(parts) != 4 {
		t.Fatalf("id %q should have 4 underscore-separated fields", id)
	}
	if parts[0] != "moby-dick" || parts[1] != "01" || parts[2] != "001" {
		t.Errorf("id fields = %v", parts[:3])
	}
	if len(parts[3]) != 7 {
		t.Errorf("content hash %q should be 7 hex chars", parts[3])
	}
}

func TestChunkIDDeterministic(t *testing.T) {
	a := New().Chunk("moby-dick", twoChapterBook)
	b := New().Chunk("moby-dick", twoChapterBook)
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("chunk ids differ between runs: %s vs %s", a[i].ID, b[i].ID)
		}
	}
}

func TestChunkWindowOverlap(t *testing.T) {
	words := make([]string, 25)
	for i := range words {
		words[i] = "word" + string(rune('a'+i))
	}
	text := strings.Join(words, " ")

	chunks := NewWithWindow(10, 2).Chunk("test-book", text)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	// Step is 8 words, so chunk 2 starts at word 8 and repeats the last 2
	// words of chunk 1.
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	if first[8] != second[0] || first[9] != second[1] {
		t.Errorf("overlap broken: chunk1 tail %v, chunk2 head %v", first[8:], second[:2])
	}
	for i, c := range chunks {
		if c.Ordinal != i+1 {
			t.Errorf("chunk %d ordinal = %d", i, c.Ordinal)
		}
	}
}

func TestChunkStripsGutenbergBoilerplate(t *testing.T) {
	text := "license preamble\n*** START OF THE PROJECT GUTENBERG EBOOK MOBY DICK ***\nthe actual story text lives here\n*** END OF THE PROJECT GUTENBERG EBOOK MOBY DICK ***\nlicense tail"
	chunks := New().Chunk("moby-dick", text)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if strings.Contains(chunks[0].Text, "license") {
		t.Errorf("boilerplate leaked into chunk: %q", chunks[0].Text)
	}
}

func TestChunkEmptyText(t *testing.T) {
	if chunks := New().Chunk("empty", "   \n  "); len(chunks) != 0 {
		t.Fatalf("empty text produced %d chunks", len(chunks))
	}
}

func TestChunkNoChapterHeadings(t *testing.T) {
	chunks := New().Chunk("plain", "just one stream of text with no chapter structure at all")
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Chapter != 1 {
		t.Errorf("chapter = %d, want 1", chunks[0].Chapter)
	}
}
