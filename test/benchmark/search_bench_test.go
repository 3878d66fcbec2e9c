package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bookquest-ai/bookquest/internal/classify"
	"github.com/bookquest-ai/bookquest/internal/fusion"
	"github.com/bookquest-ai/bookquest/internal/lexical"
	"github.com/bookquest-ai/bookquest/internal/lexical/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "Call me Ishmael. Some years ago I went to sea.",
	"medium": `The retrieval engine runs two searches over every query. The lexical
        side scores exact term overlap with frequency saturation and length
        normalization, while the vector side measures embedding similarity.
        Their candidate lists are merged by rank or by normalized score, with
        weights chosen by a heuristic look at the query itself.`,
	"long": strings.Repeat(`Whenever I find myself growing grim about the mouth; whenever
        it is a damp, drizzly November in my soul; whenever I find myself
        involuntarily pausing before coffin warehouses, and bringing up the rear
        of every funeral I meet; then, I account it high time to get to sea as
        soon as I can. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tokenizer.Tokenize(text)
				_ = tokens
			}
		})
	}
}

func buildCorpus(numDocs int) []lexical.Document {
	corpus := make([]lexical.Document, numDocs)
	for i := range corpus {
		corpus[i] = lexical.Document{
			ID:   fmt.Sprintf("bench-book_%02d_%03d_%07x", i%20+1, i, i),
			Text: fmt.Sprintf("%s chapter %d of the voyage", sampleTexts["medium"], i),
		}
	}
	return corpus
}

func BenchmarkIndexBuild(b *testing.B) {
	for _, numDocs := range []int{100, 1000, 10000} {
		corpus := buildCorpus(numDocs)
		b.Run(fmt.Sprintf("docs_%d", numDocs), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				ix, err := lexical.Build(corpus, lexical.DefaultParams())
				if err != nil {
					b.Fatal(err)
				}
				_ = ix
			}
		})
	}
}

func BenchmarkSearch(b *testing.B) {
	ix, err := lexical.Build(buildCorpus(10000), lexical.DefaultParams())
	if err != nil {
		b.Fatal(err)
	}
	queries := []struct {
		name  string
		query string
	}{
		{"single_term", "voyage"},
		{"multi_term", "retrieval engine similarity"},
		{"with_stopwords", "what is the meaning of the voyage"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				hits := ix.Search(q.query, 10)
				_ = hits
			}
		})
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	ix, err := lexical.Build(buildCorpus(10000), lexical.DefaultParams())
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			hits := ix.Search("retrieval engine voyage", 10)
			_ = hits
		}
	})
}

func buildCandidates(n int, prefix string) []fusion.Candidate {
	out := make([]fusion.Candidate, n)
	for i := range out {
		out[i] = fusion.Candidate{
			DocID: fmt.Sprintf("%s_%04d", prefix, i),
			Score: float64(n - i),
		}
	}
	// Half the ids overlap with the other list.
	for i := 0; i < n/2; i++ {
		out[i].DocID = fmt.Sprintf("shared_%04d", i)
	}
	return out
}

func BenchmarkFusion(b *testing.B) {
	for _, size := range []int{20, 100, 500} {
		lex := buildCandidates(size, "lex")
		vec := buildCandidates(size, "vec")
		b.Run(fmt.Sprintf("rrf_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				fused := fusion.RRF(lex, vec, 60)
				_ = fused
			}
		})
		b.Run(fmt.Sprintf("weighted_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				fused := fusion.Weighted(lex, vec, fusion.Weights{Lexical: 0.5, Vector: 0.5})
				_ = fused
			}
		})
	}
}

func BenchmarkClassify(b *testing.B) {
	queries := []string{
		"Odysseus Cyclops",
		"What does Telemachus feel about the suitors?",
		"the fate of Captain Ahab and the White Whale",
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		category := classify.Classify(queries[i%len(queries)])
		_ = category
	}
}
