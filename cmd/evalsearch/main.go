// Command evalsearch scores retrieval quality against a golden dataset.
// It builds the lexical index straight from the store, runs every labelled
// query through each fusion strategy, and prints hit-rate and MRR per
// cutoff so weight changes can be compared on the same corpus.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/bookquest-ai/bookquest/internal/bookstore"
	"github.com/bookquest-ai/bookquest/internal/embedding"
	"github.com/bookquest-ai/bookquest/internal/eval"
	"github.com/bookquest-ai/bookquest/internal/lexical"
	"github.com/bookquest-ai/bookquest/internal/retrieval"
	"github.com/bookquest-ai/bookquest/internal/semantic"
	"github.com/bookquest-ai/bookquest/pkg/config"
	"github.com/bookquest-ai/bookquest/pkg/logger"
	"github.com/bookquest-ai/bookquest/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	datasetPath := flag.String("dataset", "", "path to golden dataset YAML")
	limit := flag.Int("limit", 7, "results per query")
	flag.Parse()

	if *datasetPath == "" {
		fmt.Fprintln(os.Stderr, "usage: evalsearch -dataset golden.yaml [-config path] [-limit n]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ds, err := eval.LoadDataset(*datasetPath)
	if err != nil {
		slog.Error("failed to load dataset", "error", err)
		os.Exit(1)
	}
	slog.Info("golden dataset loaded", "queries", len(ds.Items))

	ctx := context.Background()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := bookstore.New(db)

	chunks, err := store.ListChunks(ctx)
	if err != nil {
		slog.Error("failed to load corpus", "error", err)
		os.Exit(1)
	}
	corpus := make([]lexical.Document, len(chunks))
	for i, c := range chunks {
		corpus[i] = lexical.Document{ID: c.ID, Text: c.Text}
	}
	ix, err := lexical.Build(corpus, lexical.Params{K1: cfg.Lexical.K1, B: cfg.Lexical.B})
	if err != nil {
		slog.Error("failed to build lexical index", "error", err)
		os.Exit(1)
	}
	holder := retrieval.NewIndexHolder()
	holder.Swap(ix)
	slog.Info("lexical index built", "documents", ix.DocCount())

	embedder := embedding.NewClient(cfg.Embedding)
	vectors := semantic.NewQdrantClient(cfg.Qdrant)

	kValues := []int{5, 7}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "strategy\thit@5\tmrr@5\thit@7\tmrr@7")
	for _, strategy := range []string{config.StrategyRRF, config.StrategyWeighted} {
		fusionCfg := cfg.Fusion
		fusionCfg.Strategy = strategy
		svc := retrieval.NewService(holder, vectors, embedder, store, fusionCfg, cfg.Search, nil)

		search := func(ctx context.Context, query, book string) ([]string, error) {
			resp, err := svc.Retrieve(ctx, query, book, *limit)
			if err != nil {
				return nil, err
			}
			ids := make([]string, len(resp.Results))
			for i, r := range resp.Results {
				ids[i] = r.DocID
			}
			return ids, nil
		}

		m, err := eval.Evaluate(ctx, ds, search, kValues)
		if err != nil {
			slog.Error("evaluation failed", "strategy", strategy, "error", err)
			os.Exit(1)
		}
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%.3f\n",
			strategy, m.HitRate[5], m.MRR[5], m.HitRate[7], m.MRR[7])
	}
	tw.Flush()
}
