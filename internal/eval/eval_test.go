package eval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestHitRateAtK(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	if got := HitRateAtK(ids, "c", 5); got != 1.0 {
		t.Errorf("gold within k: got %v", got)
	}
	if got := HitRateAtK(ids, "c", 2); got != 0.0 {
		t.Errorf("gold beyond cutoff: got %v", got)
	}
	if got := HitRateAtK(nil, "c", 5); got != 0.0 {
		t.Errorf("empty results: got %v", got)
	}
}

func TestMRRAtK(t *testing.T) {
	ids := []string{"a", "b", "c"}
	if got := MRRAtK(ids, "a", 5); got != 1.0 {
		t.Errorf("rank 1: got %v", got)
	}
	if got := MRRAtK(ids, "c", 5); got != 1.0/3.0 {
		t.Errorf("rank 3: got %v", got)
	}
	if got := MRRAtK(ids, "z", 5); got != 0.0 {
		t.Errorf("absent gold: got %v", got)
	}
}

func TestEvaluateAverages(t *testing.T) {
	ds := &Dataset{Items: []GoldenItem{
		{Query: "first", GoldID: "a"},
		{Query: "second", GoldID: "z"},
	}}
	search := func(_ context.Context, query, _ string) ([]string, error) {
		if query == "first" {
			return []string{"a", "b"}, nil
		}
		return []string{"b", "c"}, nil
	}

	m, err := Evaluate(context.Background(), ds, search, []int{5})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if m.TotalQueries != 2 {
		t.Errorf("total = %d", m.TotalQueries)
	}
	if m.HitRate[5] != 0.5 {
		t.Errorf("hit rate = %v, want 0.5", m.HitRate[5])
	}
	if m.MRR[5] != 0.5 {
		t.Errorf("mrr = %v, want 0.5", m.MRR[5])
	}
}

func TestEvaluateSearchErrorCountsAsMiss(t *testing.T) {
	ds := &Dataset{Items: []GoldenItem{{Query: "broken", GoldID: "a"}}}
	search := func(context.Context, string, string) ([]string, error) {
		return nil, errors.New("backend down")
	}
	m, err := Evaluate(context.Background(), ds, search, []int{5})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if m.HitRate[5] != 0.0 {
		t.Errorf("errored query should score zero, got %v", m.HitRate[5])
	}
}

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden.yaml")
	content := "items:\n  - query: \"Odysseus Cyclops\"\n    gold_id: odyssey_09_001_abcdef0\n    book: odyssey\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ds, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if len(ds.Items) != 1 || ds.Items[0].GoldID != "odyssey_09_001_abcdef0" {
		t.Fatalf("dataset = %+v", ds)
	}
}

func TestLoadDatasetEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	os.WriteFile(path, []byte("items: []\n"), 0644)
	if _, err := LoadDataset(path); err == nil {
		t.Fatal("expected error for empty dataset")
	}
}
