package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrag/internal/ai"
	"github.com/xxxsen/mrag/internal/config"
	"github.com/xxxsen/mrag/internal/corpus"
	"github.com/xxxsen/mrag/internal/db"
	"github.com/xxxsen/mrag/internal/embedcache"
	"github.com/xxxsen/mrag/internal/repo"
	"github.com/xxxsen/mrag/internal/service"
	"github.com/xxxsen/mrag/internal/vectorstore"
)

type application struct {
	db        *sql.DB
	store     vectorstore.Store
	cacheRepo *repo.EmbeddingCacheRepo
	ingest    *service.IngestService
	search    *service.SearchService
	loader    *service.CorpusLoader
}

func (a *application) Close() {
	if c, ok := a.store.(io.Closer); ok {
		_ = c.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*application, error) {
	app := &application{}
	if cfg.Database.Enabled() {
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := db.ApplyMigrations(conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		app.db = conn
	}

	embedder, err := buildEmbedder(ctx, cfg, app)
	if err != nil {
		app.Close()
		return nil, err
	}
	generator, err := buildGenerator(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	manager := ai.NewManager(generator, embedder, ai.ManagerConfig{
		Timeout:   cfg.AI.Timeout,
		BatchSize: cfg.AI.BatchSize,
		Dimension: cfg.VectorStore.Dimension,
	})

	chunker, err := ai.NewTextChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		app.Close()
		return nil, err
	}
	store, err := vectorstore.New(cfg.VectorStore.Type, &vectorstore.Options{
		Table:     cfg.VectorStore.TableName,
		Dimension: cfg.VectorStore.Dimension,
		DB:        app.db,
		Data:      cfg.VectorStore.Data,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	app.store = store

	var catalog repo.DocumentCatalog = repo.NewMemoryDocumentRepo()
	if cfg.Catalog.Type == "postgres" {
		catalog = repo.NewDocumentRepo(app.db)
	}
	source, err := corpus.New(cfg.Corpus.Type, cfg.Corpus.Data)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init corpus source: %w", err)
	}

	app.ingest = service.NewIngestService(chunker, manager, store, catalog)
	app.search = service.NewSearchService(manager, manager, store)
	app.loader = service.NewCorpusLoader(source, chunker, manager, store, cfg.VectorStore.Dimension, cfg.Bootstrap.OnProbeError)
	logutil.GetLogger(ctx).Info("application ready",
		zap.String("vector_store", store.Name()),
		zap.String("embedding_model", manager.EmbeddingModelName()),
	)
	return app, nil
}

func buildEmbedder(ctx context.Context, cfg *config.Config, app *application) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfg.AI.Embedders))
	for _, item := range cfg.AI.Embedders {
		p, err := ai.NewEmbedProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init embed provider %s: %w", item.Provider, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     item.Provider + ":" + item.Model,
			Embedder: ai.NewEmbedder(p, item.Model),
		})
	}
	embedder := ai.NewGroupEmbedder(entries)
	if embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	if cfg.EmbedCache.DB && app.db != nil {
		app.cacheRepo = repo.NewEmbeddingCacheRepo(app.db)
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, app.cacheRepo)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.EmbedCache.LRUSize, time.Duration(cfg.EmbedCache.LRUTTL)*time.Second)
	logutil.GetLogger(ctx).Info("embedder ready",
		zap.Int("providers", len(entries)),
		zap.Bool("db_cache", app.cacheRepo != nil),
		zap.Int("lru_size", cfg.EmbedCache.LRUSize),
	)
	return embedder, nil
}

func buildGenerator(cfg *config.Config) (ai.IGenerator, error) {
	entries := make([]ai.GeneratorEntry, 0, len(cfg.AI.Generators))
	for _, item := range cfg.AI.Generators {
		p, err := ai.NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init ai provider %s: %w", item.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{
			Name:      item.Provider + ":" + item.Model,
			Generator: ai.NewGenerator(p, item.Model),
		})
	}
	return ai.NewGroupGenerator(entries), nil
}
