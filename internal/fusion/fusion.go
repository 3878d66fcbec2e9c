// Package fusion merges the lexical and vector candidate lists into one
// ranking. Two strategies are offered: reciprocal rank fusion, which looks
// only at ranks, and adaptive weighted fusion, which min-max normalizes raw
// scores and blends them with weights chosen by the query category. Both are
// commutative over the order the two lists are supplied in.
package fusion

import "sort"

// Candidate is one scored document from a single retriever, in that
// retriever's native score scale.
type Candidate struct {
	DocID string
	Score float64
}

// Fused is one document of the merged ranking.
type Fused struct {
	DocID string
	Score float64
}

// Weights is one lexical/vector pair from the adaptive weight table.
type Weights struct {
	Lexical float64
	Vector  float64
}

// RRF merges two ranked lists by reciprocal rank. Each appearance of a
// document contributes 1/(c+rank) with rank 1-based within its own list;
// documents seen by only one retriever still score, just lower. Ties break
// by the document's best rank across both lists, then by doc id.
func RRF(lexical, vector []Candidate, c int) []Fused {
	type entry struct {
		score    float64
		bestRank int
	}
	entries := make(map[string]*entry, len(lexical)+len(vector))
	accumulate := func(list []Candidate) {
		for i, cand := range list {
			rank := i + 1
			e := entries[cand.DocID]
			if e == nil {
				e = &entry{bestRank: rank}
				entries[cand.DocID] = e
			} else if rank < e.bestRank {
				e.bestRank = rank
			}
			e.score += 1.0 / float64(c+rank)
		}
	}
	accumulate(lexical)
	accumulate(vector)

	fused := make([]Fused, 0, len(entries))
	for id, e := range entries {
		fused = append(fused, Fused{DocID: id, Score: e.score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		ri, rj := entries[fused[i].DocID].bestRank, entries[fused[j].DocID].bestRank
		if ri != rj {
			return ri < rj
		}
		return fused[i].DocID < fused[j].DocID
	})
	return fused
}

// Weighted merges two lists by blending min-max normalized scores:
// w.Lexical*norm(lex) + w.Vector*norm(vec). Normalization happens within
// each list on its own, which keeps the two incomparable score scales from
// leaking into each other. A document absent from one list contributes zero
// for that term. Ties break by doc id.
func Weighted(lexical, vector []Candidate, w Weights) []Fused {
	lexNorm := normalize(lexical)
	vecNorm := normalize(vector)

	scores := make(map[string]float64, len(lexNorm)+len(vecNorm))
	for id, s := range lexNorm {
		scores[id] += w.Lexical * s
	}
	for id, s := range vecNorm {
		scores[id] += w.Vector * s
	}

	fused := make([]Fused, 0, len(scores))
	for id, s := range scores {
		fused = append(fused, Fused{DocID: id, Score: s})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].DocID < fused[j].DocID
	})
	return fused
}

// normalize maps each candidate's score into [0,1] within its own list.
// A constant-score list (including a single candidate) maps to all ones:
// every member was that retriever's best answer.
func normalize(list []Candidate) map[string]float64 {
	if len(list) == 0 {
		return nil
	}
	min, max := list[0].Score, list[0].Score
	for _, c := range list[1:] {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}
	out := make(map[string]float64, len(list))
	span := max - min
	for _, c := range list {
		if span == 0 {
			out[c.DocID] = 1.0
			continue
		}
		out[c.DocID] = (c.Score - min) / span
	}
	return out
}
