package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrag/internal/ai"
	"github.com/xxxsen/mrag/internal/config"
	"github.com/xxxsen/mrag/internal/corpus"
	"github.com/xxxsen/mrag/internal/metrics"
	"github.com/xxxsen/mrag/internal/model"
	appErr "github.com/xxxsen/mrag/internal/pkg/errors"
	"github.com/xxxsen/mrag/internal/vectorstore"
)

const probeFill = 0.1

type LoadResult struct {
	Loaded   bool   `json:"loaded"`
	Existing bool   `json:"existing"`
	Skipped  bool   `json:"skipped"`
	Files    int    `json:"files"`
	Vectors  int    `json:"vectors"`
	Stored   *int64 `json:"stored,omitempty"`
}

// CorpusLoader seeds an empty vector store from a corpus source.
type CorpusLoader struct {
	mu        sync.Mutex
	source    corpus.Source
	chunker   Chunker
	embedder  Embedder
	store     vectorstore.Store
	dimension int
	onProbe   string
}

func NewCorpusLoader(source corpus.Source, chunker Chunker, embedder Embedder, store vectorstore.Store, dimension int, onProbeError string) *CorpusLoader {
	if onProbeError == "" {
		onProbeError = config.ProbeErrorFail
	}
	return &CorpusLoader{
		source:    source,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		dimension: dimension,
		onProbe:   onProbeError,
	}
}

// Bootstrap initializes the store and loads the corpus when it is empty.
func (l *CorpusLoader) Bootstrap(ctx context.Context) (*LoadResult, error) {
	start := time.Now()
	err := l.store.Initialize(ctx)
	metrics.ObserveStage("initialize", start, err)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrStoreInit, "initialize", err)
	}
	res, err := l.LoadIfAbsent(ctx)
	if err != nil {
		return nil, err
	}
	if sp, ok := l.store.(vectorstore.StatsProvider); ok {
		if st, err := sp.Stats(ctx); err == nil {
			res.Stored = &st.Count
		}
	}
	return res, nil
}

// LoadIfAbsent loads every corpus file unless the store already holds data.
// Concurrent callers are serialized so only one of them loads.
func (l *CorpusLoader) LoadIfAbsent(ctx context.Context) (*LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	logger := logutil.GetLogger(ctx).With(zap.String("corpus", l.source.Type()))
	has, err := l.HasData(ctx)
	if err != nil {
		switch l.onProbe {
		case config.ProbeErrorSkip:
			logger.Warn("probe vector store failed, skip loading", zap.Error(err))
			return &LoadResult{Skipped: true}, nil
		case config.ProbeErrorReload:
			logger.Warn("probe vector store failed, reload corpus", zap.Error(err))
		default:
			logger.Error("probe vector store failed", zap.Error(err))
			return nil, storeError("probe", err)
		}
	}
	if has {
		logger.Info("vector store already has data, skip loading")
		return &LoadResult{Existing: true}, nil
	}
	return l.load(ctx)
}

// HasData reports whether the store holds at least one record, preferring
// the stats capability and falling back to a match-all search.
func (l *CorpusLoader) HasData(ctx context.Context) (bool, error) {
	if sp, ok := l.store.(vectorstore.StatsProvider); ok {
		st, err := sp.Stats(ctx)
		if err != nil {
			return false, err
		}
		if st.Count > 0 {
			return true, nil
		}
	}
	probe := make([]float32, l.dimension)
	for i := range probe {
		probe[i] = probeFill
	}
	res, err := l.store.SearchSimilar(ctx, probe, 1, vectorstore.MaxDistance)
	if err != nil {
		return false, err
	}
	return len(res) > 0, nil
}

func (l *CorpusLoader) load(ctx context.Context) (*LoadResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("corpus", l.source.Type()))
	names, err := l.source.List(ctx)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrInternal, "read", fmt.Errorf("list corpus: %w", err))
	}
	res := &LoadResult{Loaded: true}
	if len(names) == 0 {
		logger.Warn("corpus has no files to load")
		return res, nil
	}
	for _, name := range names {
		n, err := l.loadFile(ctx, name)
		if err != nil {
			logger.Error("load corpus file failed", zap.String("file", name), zap.Error(err))
			return nil, err
		}
		res.Files++
		res.Vectors += n
		logger.Info("corpus file loaded", zap.String("file", name), zap.Int("chunks", n))
	}
	logger.Info("corpus loaded", zap.Int("files", res.Files), zap.Int("vectors", res.Vectors))
	return res, nil
}

func (l *CorpusLoader) loadFile(ctx context.Context, name string) (int, error) {
	text, err := l.source.Read(ctx, name)
	if err != nil {
		return 0, appErr.Wrap(appErr.ErrInternal, "read", fmt.Errorf("read %s: %w", name, err))
	}
	chunks := l.chunker.Chunk(text)
	if len(chunks) == 0 {
		return 0, nil
	}
	start := time.Now()
	vectors, err := l.embedder.EmbedBatch(ctx, chunks, ai.TaskTypeDocument)
	if err == nil && len(vectors) != len(chunks) {
		err = fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	metrics.ObserveStage("embed", start, err)
	if err != nil {
		return 0, appErr.Wrap(appErr.ErrEmbedding, "embed", fmt.Errorf("embed %s: %w", name, err))
	}
	now := time.Now().UTC()
	records := make([]*model.VectorRecord, 0, len(chunks))
	for i, text := range chunks {
		records = append(records, &model.VectorRecord{
			ID:     corpusChunkID(name, i),
			Text:   text,
			Vector: vectors[i],
			Metadata: model.VectorMetadata{
				Title:        fmt.Sprintf("%s - Chunk %d", name, i+1),
				Source:       name,
				Category:     model.DefaultCategory,
				ChunkIndex:   i,
				OriginalFile: name,
				CreatedAt:    now,
				UpdatedAt:    now,
			},
		})
	}
	start = time.Now()
	err = l.store.AddVectors(ctx, records)
	metrics.ObserveStage("store", start, err)
	if err != nil {
		return 0, storeError("store", fmt.Errorf("store %s: %w", name, err))
	}
	metrics.AddIngestedChunks("corpus", len(records))
	return len(records), nil
}
