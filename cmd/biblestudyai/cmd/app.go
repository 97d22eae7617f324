package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/AssetOverflow/BibleStudyAI/internal/answer"
	"github.com/AssetOverflow/BibleStudyAI/internal/config"
	"github.com/AssetOverflow/BibleStudyAI/internal/embed"
	apperrors "github.com/AssetOverflow/BibleStudyAI/internal/errors"
	"github.com/AssetOverflow/BibleStudyAI/internal/llm"
	"github.com/AssetOverflow/BibleStudyAI/internal/search"
	"github.com/AssetOverflow/BibleStudyAI/internal/server"
	"github.com/AssetOverflow/BibleStudyAI/internal/session"
	"github.com/AssetOverflow/BibleStudyAI/internal/store"
)

// app bundles the wired engine for the serve and ask commands.
type app struct {
	cfg *config.Config

	db       *sql.DB
	corpus   store.CorpusStore
	graph    store.GraphStore
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	embedder embed.Embedder
	model    llm.Client

	pipeline *search.Pipeline
	synth    *answer.Synthesizer
	sessions *session.Manager
	storage  *session.Storage
}

// buildApp wires the full engine from configuration: stores, indexes,
// collaborators, retrieval pipeline, synthesizer, and session manager.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	db, err := store.OpenDB(cfg.CorpusDBPath())
	if err != nil {
		return fmt.Errorf("opening corpus database: %w", err)
	}
	a.db = db
	a.corpus = store.NewSQLiteCorpus(db)
	a.graph = store.NewSQLiteGraph(db)

	a.lexical, err = store.NewBleveLexicalIndex(cfg.LexicalIndexPath())
	if err != nil {
		return fmt.Errorf("opening lexical index: %w", err)
	}

	if a.embedder, err = buildEmbedder(ctx, cfg); err != nil {
		return err
	}

	if a.vector, err = buildVectorIndex(ctx, cfg, a.corpus, a.embedder.Dimensions()); err != nil {
		return err
	}

	a.model = llm.NewOllamaClient(llm.Config{
		Host:              cfg.LLM.Host,
		Model:             cfg.LLM.Model,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})

	graphAdapter, err := search.NewGraphAdapter(a.graph, cfg.Search.GraphDepth)
	if err != nil {
		return err
	}
	a.pipeline = search.NewPipeline(
		search.NewLexicalAdapter(a.lexical),
		search.NewVectorAdapter(a.embedder, a.vector, a.corpus),
		graphAdapter,
		a.corpus,
		cfg.Search,
		slog.Default(),
	)

	a.synth = answer.NewSynthesizer(a.model, cfg.LLM.SynthesisTimeout, slog.Default(),
		answer.WithMaxContextTokens(cfg.LLM.MaxContextTokens))
	a.storage = session.NewStorage(db)
	a.sessions = session.NewManager(a.storage, cfg.Sessions, slog.Default())

	return nil
}

// buildEmbedder constructs the configured embedding provider wrapped in the
// LRU cache.
func buildEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	var (
		inner embed.Embedder
		err   error
	)
	switch cfg.Embeddings.Provider {
	case "static":
		inner = embed.NewStaticEmbedder()
	default:
		inner, err = embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
			Host:              cfg.Embeddings.OllamaHost,
			Model:             cfg.Embeddings.Model,
			Dimensions:        cfg.Embeddings.Dimensions,
			Timeout:           cfg.Embeddings.Timeout,
			RequestsPerSecond: cfg.Embeddings.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to embedding provider: %w", err)
		}
	}
	return embed.NewCachedEmbedder(inner, cfg.Embeddings.CacheSize), nil
}

// buildVectorIndex opens the HNSW index, refusing to serve when the stored
// dimensionality disagrees with the configured embedder. That mismatch is a
// deployment defect; silently proceeding would corrupt every search.
// A missing snapshot is rebuilt from the corpus embeddings.
func buildVectorIndex(ctx context.Context, cfg *config.Config, corpus store.CorpusStore, dims int) (store.VectorIndex, error) {
	path := cfg.VectorIndexPath()

	stored, err := store.ReadIndexDimensions(path)
	if err != nil {
		return nil, fmt.Errorf("reading vector index metadata: %w", err)
	}
	if stored > 0 && stored != dims {
		return nil, apperrors.DimensionMismatch(dims, stored)
	}

	idx, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(dims))
	if err != nil {
		return nil, fmt.Errorf("creating vector index: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := idx.Load(path); err != nil {
			return nil, fmt.Errorf("loading vector index: %w", err)
		}
		return idx, nil
	}

	n, err := store.RebuildVectorIndex(ctx, idx, corpus)
	if err != nil {
		return nil, fmt.Errorf("rebuilding vector index: %w", err)
	}
	if n > 0 {
		slog.Info("rebuilt vector index from corpus embeddings",
			slog.Int("chunks", n))
		if err := idx.Save(path); err != nil {
			return nil, fmt.Errorf("saving rebuilt vector index: %w", err)
		}
	}
	return idx, nil
}

// pingers returns the dependency probes for the readiness endpoint.
func (a *app) pingers() []server.Pinger {
	return []server.Pinger{
		server.PingerFunc{Label: "corpus", Fn: a.db.PingContext},
		server.PingerFunc{Label: "embedder", Fn: func(ctx context.Context) error {
			if !a.embedder.Available(ctx) {
				return fmt.Errorf("embedding provider unreachable")
			}
			return nil
		}},
		server.PingerFunc{Label: "llm", Fn: func(ctx context.Context) error {
			if !a.model.Available(ctx) {
				return fmt.Errorf("model unreachable")
			}
			return nil
		}},
	}
}

// Close releases every open resource. Safe on a partially wired app.
func (a *app) Close() {
	if a.model != nil {
		_ = a.model.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.vector != nil {
		_ = a.vector.Close()
	}
	if a.lexical != nil {
		_ = a.lexical.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
