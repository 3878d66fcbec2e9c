// Package eval measures retrieval quality against a golden dataset of
// (query, expected chunk id) pairs. Hit-rate@K and MRR@K are the numbers
// fusion weights get tuned by.
package eval

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GoldenItem is one labelled query.
type GoldenItem struct {
	Query  string `yaml:"query"`
	GoldID string `yaml:"gold_id"`
	Book   string `yaml:"book,omitempty"`
}

// Dataset is a list of labelled queries, typically loaded from YAML.
type Dataset struct {
	Items []GoldenItem `yaml:"items"`
}

// LoadDataset reads a golden dataset file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading golden dataset: %w", err)
	}
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parsing golden dataset: %w", err)
	}
	if len(ds.Items) == 0 {
		return nil, fmt.Errorf("golden dataset %s has no items", path)
	}
	return &ds, nil
}

// Metrics are averaged over all evaluated queries.
type Metrics struct {
	HitRate      map[int]float64
	MRR          map[int]float64
	TotalQueries int
}

// HitRateAtK reports whether goldID appears in the first k results.
func HitRateAtK(resultIDs []string, goldID string, k int) float64 {
	if k > len(resultIDs) {
		k = len(resultIDs)
	}
	for _, id := range resultIDs[:k] {
		if id == goldID {
			return 1.0
		}
	}
	return 0.0
}

// MRRAtK returns the reciprocal of goldID's 1-based rank within the first
// k results, or zero when absent.
func MRRAtK(resultIDs []string, goldID string, k int) float64 {
	if k > len(resultIDs) {
		k = len(resultIDs)
	}
	for i, id := range resultIDs[:k] {
		if id == goldID {
			return 1.0 / float64(i+1)
		}
	}
	return 0.0
}

// SearchFunc runs one query and returns ranked chunk ids.
type SearchFunc func(ctx context.Context, query, book string) ([]string, error)

// Evaluate runs every golden query through search and averages the metrics
// at each cutoff. A query that errors counts as a miss rather than
// aborting the run.
func Evaluate(ctx context.Context, ds *Dataset, search SearchFunc, kValues []int) (*Metrics, error) {
	if len(kValues) == 0 {
		kValues = []int{5, 7}
	}
	m := &Metrics{
		HitRate:      make(map[int]float64, len(kValues)),
		MRR:          make(map[int]float64, len(kValues)),
		TotalQueries: len(ds.Items),
	}

	for _, item := range ds.Items {
		ids, err := search(ctx, item.Query, item.Book)
		if err != nil {
			ids = nil
		}
		for _, k := range kValues {
			m.HitRate[k] += HitRateAtK(ids, item.GoldID, k)
			m.MRR[k] += MRRAtK(ids, item.GoldID, k)
		}
	}
	n := float64(len(ds.Items))
	for _, k := range kValues {
		m.HitRate[k] /= n
		m.MRR[k] /= n
	}
	return m, nil
}
