// Package classify assigns a query to a coarse category so the fusion
// layer can pick weights. The judgment is heuristic and purely
// string-derived; a wrong category costs ranking quality, never an error.
package classify

import (
	"strings"
	"unicode"

	"github.com/bookquest-ai/bookquest/internal/lexical/tokenizer"
)

// Category is a closed set of query kinds.
type Category string

const (
	// Keyword queries are short, entity-heavy lookups ("Odysseus Cyclops",
	// "golden sandals") where exact term matching dominates.
	Keyword Category = "keyword"
	// Conceptual queries are question-like or descriptive and are served
	// better by embedding similarity.
	Conceptual Category = "conceptual"
	// Mixed covers everything without a clear lean.
	Mixed Category = "mixed"
)

// Classify categorizes a raw query string. Same input, same output:
// no state, no randomness.
func Classify(query string) Category {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Mixed
	}

	words := strings.Fields(trimmed)
	var keyword, conceptual int

	if strings.HasSuffix(trimmed, "?") || isQuestionOpener(words[0]) {
		conceptual += 2
	}
	if strings.Count(trimmed, `"`) >= 2 {
		keyword += 2
	}

	switch n := len(words); {
	case n <= 3:
		keyword++
	case n >= 9:
		conceptual++
	}

	if properNounCount(words) >= 2 {
		keyword++
	}

	switch ratio := stopWordRatio(words); {
	case ratio >= 0.5:
		conceptual++
	case ratio <= 0.15:
		keyword++
	}

	switch {
	case keyword > conceptual:
		return Keyword
	case conceptual > keyword:
		return Conceptual
	default:
		return Mixed
	}
}

func isQuestionOpener(word string) bool {
	switch strings.ToLower(strings.Trim(word, `"'`)) {
	case "what", "when", "where", "who", "whom", "whose", "why", "how",
		"does", "do", "did", "is", "are", "was", "were", "can", "could",
		"should", "would", "explain", "describe":
		return true
	}
	return false
}

// properNounCount counts capitalized words past the first position; the
// sentence-initial word is capitalized regardless of what it is, so it
// carries no signal.
func properNounCount(words []string) int {
	count := 0
	for i, w := range words {
		if i == 0 {
			continue
		}
		w = strings.Trim(w, `"'.,;:!?`)
		if w == "" {
			continue
		}
		r := []rune(w)[0]
		if unicode.IsUpper(r) {
			count++
		}
	}
	return count
}

func stopWordRatio(words []string) float64 {
	stops := 0
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, `"'.,;:!?`))
		if tokenizer.IsStopWord(w) {
			stops++
		}
	}
	return float64(stops) / float64(len(words))
}
