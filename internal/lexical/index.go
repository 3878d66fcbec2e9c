// Package lexical implements the in-memory BM25 index over book chunks.
//
// An Index is an immutable snapshot: it is fully populated by Build (or Load)
// and never mutated afterwards, so concurrent readers need no locking.
// Re-indexing produces a new Index value that the owner swaps in atomically.
package lexical

import (
	"math"
	"sort"
	"strings"

	"github.com/bookquest-ai/bookquest/internal/lexical/tokenizer"
	apperrors "github.com/bookquest-ai/bookquest/pkg/errors"
)

// Document is one indexable unit: a book chunk. The ID encodes book slug,
// chapter, chunk ordinal, and content hash ("slug_chapter_ordinal_hash").
type Document struct {
	ID   string
	Text string
}

// Candidate pairs a document id with a raw relevance score on this
// retriever's own scale.
type Candidate struct {
	DocID string
	Score float64
}

// Params are the BM25 scoring constants: k1 saturates term frequency, b
// controls document-length normalisation.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams mirror the values the original ranking was tuned with.
func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

type posting struct {
	DocID string `json:"d"`
	Freq  int    `json:"f"`
}

// Index is an immutable inverted index with BM25 scoring.
type Index struct {
	params   Params
	postings map[string][]posting // term -> postings sorted by doc id
	docLens  map[string]int
	docIDs   []string // sorted, one entry per indexed document
	avgdl    float64
}

// Build tokenizes the corpus and constructs a complete Index. It returns
// ErrEmptyCorpus when the corpus has no documents. A document appearing twice
// keeps the last occurrence, matching wholesale re-ingestion semantics.
func Build(corpus []Document, params Params) (*Index, error) {
	if len(corpus) == 0 {
		return nil, apperrors.ErrEmptyCorpus
	}
	if params.K1 <= 0 {
		params = DefaultParams()
	}

	texts := make(map[string]string, len(corpus))
	for _, doc := range corpus {
		texts[doc.ID] = doc.Text
	}

	termFreqs := make(map[string]map[string]int)
	docLens := make(map[string]int, len(texts))
	for id, text := range texts {
		terms := tokenizer.Tokenize(text)
		docLens[id] = len(terms)
		freqs := make(map[string]int, len(terms))
		for _, term := range terms {
			freqs[term]++
		}
		for term, freq := range freqs {
			if _, ok := termFreqs[term]; !ok {
				termFreqs[term] = make(map[string]int)
			}
			termFreqs[term][id] = freq
		}
	}

	docIDs := make([]string, 0, len(docLens))
	var totalTokens int
	for id, length := range docLens {
		docIDs = append(docIDs, id)
		totalTokens += length
	}
	sort.Strings(docIDs)

	postings := make(map[string][]posting, len(termFreqs))
	for term, docs := range termFreqs {
		list := make([]posting, 0, len(docs))
		for id, freq := range docs {
			list = append(list, posting{DocID: id, Freq: freq})
		}
		sort.Slice(list, func(i, j int) bool { return list[i].DocID < list[j].DocID })
		postings[term] = list
	}

	return &Index{
		params:   params,
		postings: postings,
		docLens:  docLens,
		docIDs:   docIDs,
		avgdl:    float64(totalTokens) / float64(len(docIDs)),
	}, nil
}

// Search scores every document sharing at least one term with the query and
// returns the topK best, descending by score with ties broken by ascending
// doc id. A query with no indexed terms yields an empty slice, not an error.
// topK <= 0 means no truncation.
func (ix *Index) Search(query string, topK int) []Candidate {
	return ix.search(query, topK, nil)
}

// SearchBook behaves like Search but only considers documents whose id
// carries the given book slug prefix. Scoping happens during scoring, before
// truncation, so a small topK is never starved by out-of-scope documents.
func (ix *Index) SearchBook(bookSlug, query string, topK int) []Candidate {
	prefix := bookSlug + "_"
	return ix.search(query, topK, func(docID string) bool {
		return strings.HasPrefix(docID, prefix)
	})
}

func (ix *Index) search(query string, topK int, accept func(docID string) bool) []Candidate {
	queryTerms := tokenizer.Tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	n := float64(len(ix.docIDs))
	scores := make(map[string]float64)
	seen := make(map[string]struct{}, len(queryTerms))
	for _, term := range queryTerms {
		// Score each distinct query term once; repeating a term in the
		// query does not multiply its contribution.
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		list, ok := ix.postings[term]
		if !ok {
			continue // unseen at index time, no fuzzy fallback
		}
		idf := computeIDF(n, float64(len(list)))
		for _, p := range list {
			if accept != nil && !accept(p.DocID) {
				continue
			}
			scores[p.DocID] += idf * ix.tfNorm(float64(p.Freq), float64(ix.docLens[p.DocID]))
		}
	}

	result := make([]Candidate, 0, len(scores))
	for docID, score := range scores {
		result = append(result, Candidate{DocID: docID, Score: score})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	if topK > 0 && len(result) > topK {
		result = result[:topK]
	}
	return result
}

// computeIDF is the BM25+ style inverse document frequency. The +1 inside the
// log floors the value above zero, so terms present in nearly every chunk
// still contribute a small positive weight instead of a negative one.
func computeIDF(totalDocs, docFreq float64) float64 {
	return math.Log((totalDocs-docFreq+0.5)/(docFreq+0.5) + 1)
}

func (ix *Index) tfNorm(termFreq, docLen float64) float64 {
	if ix.avgdl == 0 {
		return 0
	}
	denom := termFreq + ix.params.K1*(1-ix.params.B+ix.params.B*docLen/ix.avgdl)
	return termFreq * (ix.params.K1 + 1) / denom
}

// DocCount returns the number of indexed documents.
func (ix *Index) DocCount() int {
	return len(ix.docIDs)
}

// AvgDocLength returns the corpus-wide average token count per document.
func (ix *Index) AvgDocLength() float64 {
	return ix.avgdl
}

// Contains reports whether the document id is part of this snapshot.
func (ix *Index) Contains(docID string) bool {
	i := sort.SearchStrings(ix.docIDs, docID)
	return i < len(ix.docIDs) && ix.docIDs[i] == docID
}
