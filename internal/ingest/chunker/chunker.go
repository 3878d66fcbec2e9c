// Package chunker splits raw book text into chapters and fixed-size,
// overlapping chunks. Chunk ids encode book slug, chapter, ordinal, and a
// short content hash, so the same text always produces the same id.
package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/bookquest-ai/bookquest/internal/bookstore"
)

var (
	chapterPattern   = regexp.MustCompile(`(?im)^(?:CHAPTER|BOOK|PART)\s+(?:[IVXLCDM]+|\d+)\.?\s*$`)
	gutenbergMarkers = regexp.MustCompile(`(?s)\*\*\* START OF.*?\*\*\*(.*)\*\*\* END OF.*?\*\*\*`)
)

const (
	// Chunk window and overlap in words. Overlap keeps a sentence that
	// straddles a boundary findable from either side.
	defaultChunkWords = 350
	defaultOverlap    = 60
)

// Chunker turns one book's text into bookstore chunks.
type Chunker struct {
	chunkWords int
	overlap    int
}

func New() *Chunker {
	return &Chunker{chunkWords: defaultChunkWords, overlap: defaultOverlap}
}

// NewWithWindow builds a Chunker with an explicit window and overlap,
// mostly for tests. overlap must be smaller than chunkWords.
func NewWithWindow(chunkWords, overlap int) *Chunker {
	if chunkWords < 1 {
		chunkWords = defaultChunkWords
	}
	if overlap < 0 || overlap >= chunkWords {
		overlap = chunkWords / 5
	}
	return &Chunker{chunkWords: chunkWords, overlap: overlap}
}

// Chunk splits text into chapter-scoped chunks for the given book slug.
// Project Gutenberg boilerplate is stripped when its markers are present.
func (c *Chunker) Chunk(slug, text string) []bookstore.Chunk {
	if m := gutenbergMarkers.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var chunks []bookstore.Chunk
	for chapterNum, chapter := range splitChapters(text) {
		words := strings.Fields(chapter)
		if len(words) == 0 {
			continue
		}
		step := c.chunkWords - c.overlap
		ordinal := 0
		for start := 0; start < len(words); start += step {
			end := start + c.chunkWords
			if end > len(words) {
				end = len(words)
			}
			ordinal++
			body := strings.Join(words[start:end], " ")
			chunks = append(chunks, bookstore.Chunk{
				ID:         ChunkID(slug, chapterNum+1, ordinal, body),
				BookSlug:   slug,
				Chapter:    chapterNum + 1,
				Ordinal:    ordinal,
				Text:       body,
				TokenCount: end - start,
				CharCount:  len(body),
			})
			if end == len(words) {
				break
			}
		}
	}
	return chunks
}

// ChunkID builds the canonical chunk id: slug, zero-padded chapter and
// ordinal, and the first 7 hex chars of the content hash.
func ChunkID(slug string, chapter, ordinal int, text string) string {
	sum := md5.Sum([]byte(text))
	return fmt.Sprintf("%s_%02d_%03d_%s", slug, chapter, ordinal, hex.EncodeToString(sum[:])[:7])
}

// splitChapters cuts the text on chapter headings. Text before the first
// heading (or all of it, when no headings exist) is its own section.
func splitChapters(text string) []string {
	parts := chapterPattern.Split(text, -1)
	sections := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		sections = append(sections, p)
	}
	if len(sections) == 0 {
		return nil
	}
	return sections
}
