package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrag/internal/ai"
	"github.com/xxxsen/mrag/internal/metrics"
	"github.com/xxxsen/mrag/internal/model"
	appErr "github.com/xxxsen/mrag/internal/pkg/errors"
	"github.com/xxxsen/mrag/internal/repo"
	"github.com/xxxsen/mrag/internal/vectorstore"
)

const (
	minContentChars = 10
	defaultTitle    = "Untitled"
)

type AddDocumentInput struct {
	Content  string
	Title    string
	Source   string
	Category string
}

type IngestResult struct {
	DocumentID string `json:"documentId"`
	Chunks     int    `json:"chunks"`
}

// IngestService turns documents into stored chunk vectors and a catalog row.
type IngestService struct {
	chunker  Chunker
	embedder Embedder
	store    vectorstore.Store
	catalog  repo.DocumentCatalog
	now      func() time.Time
}

func NewIngestService(chunker Chunker, embedder Embedder, store vectorstore.Store, catalog repo.DocumentCatalog) *IngestService {
	return &IngestService{chunker: chunker, embedder: embedder, store: store, catalog: catalog, now: time.Now}
}

func (s *IngestService) AddDocument(ctx context.Context, input AddDocumentInput) (*IngestResult, error) {
	content := strings.TrimSpace(input.Content)
	if utf8.RuneCountInString(content) < minContentChars {
		return nil, appErr.Wrap(appErr.ErrInvalid, "validate", fmt.Errorf("content must have at least %d characters", minContentChars))
	}
	now := s.now().UTC()
	doc := &model.Document{
		ID:      newDocumentID(),
		Content: input.Content,
		Metadata: model.DocumentMetadata{
			Title:     withDefault(input.Title, defaultTitle),
			Source:    withDefault(input.Source, model.DefaultSource),
			Category:  withDefault(input.Category, model.DefaultCategory),
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	chunks, err := s.Ingest(ctx, doc)
	if err != nil {
		return nil, err
	}
	return &IngestResult{DocumentID: doc.ID, Chunks: chunks}, nil
}

// Ingest chunks, embeds and stores doc, then records it in the catalog.
// Vectors already written are left in place when a later stage fails.
func (s *IngestService) Ingest(ctx context.Context, doc *model.Document) (int, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", doc.ID))

	start := time.Now()
	chunks := s.chunker.Chunk(doc.Content)
	metrics.ObserveStage("chunk", start, nil)

	if len(chunks) > 0 {
		start = time.Now()
		vectors, err := s.embedder.EmbedBatch(ctx, chunks, ai.TaskTypeDocument)
		if err == nil && len(vectors) != len(chunks) {
			err = fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
		}
		metrics.ObserveStage("embed", start, err)
		if err != nil {
			logger.Error("embed document chunks failed", zap.Error(err))
			return 0, appErr.Wrap(appErr.ErrEmbedding, "embed", err)
		}

		records := make([]*model.VectorRecord, 0, len(chunks))
		for i, text := range chunks {
			records = append(records, &model.VectorRecord{
				ID:     chunkID(doc.ID, i),
				Text:   text,
				Vector: vectors[i],
				Metadata: model.VectorMetadata{
					Title:              doc.Metadata.Title,
					Source:             doc.Metadata.Source,
					Category:           doc.Metadata.Category,
					ChunkIndex:         i,
					OriginalDocumentID: doc.ID,
					CreatedAt:          doc.Metadata.CreatedAt,
					UpdatedAt:          doc.Metadata.UpdatedAt,
				},
			})
		}
		start = time.Now()
		err = s.store.AddVectors(ctx, records)
		metrics.ObserveStage("store", start, err)
		if err != nil {
			logger.Error("store document vectors failed", zap.Error(err))
			return 0, storeError("store", err)
		}
	}

	start = time.Now()
	err := s.catalog.Save(ctx, doc)
	metrics.ObserveStage("catalog", start, err)
	if err != nil {
		logger.Error("save document failed", zap.Error(err))
		return 0, appErr.Wrap(appErr.ErrCatalog, "catalog", err)
	}
	metrics.AddIngestedChunks(doc.Metadata.Source, len(chunks))
	logger.Info("document ingested", zap.Int("chunks", len(chunks)), zap.String("source", doc.Metadata.Source))
	return len(chunks), nil
}

// DeleteDocument removes a document's chunk vectors and its catalog row.
// Missing ids are not an error.
func (s *IngestService) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.catalog.FindByID(ctx, id)
	if err != nil {
		return appErr.Wrap(appErr.ErrCatalog, "catalog", err)
	}
	if doc == nil {
		return nil
	}
	chunks := s.chunker.Chunk(doc.Content)
	for i := range chunks {
		if err := s.store.DeleteVector(ctx, chunkID(doc.ID, i)); err != nil {
			return storeError("store", err)
		}
	}
	if err := s.catalog.Delete(ctx, id); err != nil {
		return appErr.Wrap(appErr.ErrCatalog, "catalog", err)
	}
	return nil
}

func (s *IngestService) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.catalog.FindByID(ctx, id)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrCatalog, "catalog", err)
	}
	if doc == nil {
		return nil, appErr.ErrNotFound
	}
	return doc, nil
}

func (s *IngestService) ListDocuments(ctx context.Context, filter map[string]string) ([]*model.Document, error) {
	docs, err := s.catalog.FindByMetadata(ctx, filter)
	if err != nil {
		if appErr.IsInvalid(err) {
			return nil, err
		}
		return nil, appErr.Wrap(appErr.ErrCatalog, "catalog", err)
	}
	return docs, nil
}

type ReindexResult struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Failed    int `json:"failed"`
}

// Reindex re-embeds every catalogued document into the vector store. Chunk
// ids are stable, so existing vectors are overwritten in place. A failing
// document is logged and counted, and the run continues.
func (s *IngestService) Reindex(ctx context.Context, pause time.Duration) (*ReindexResult, error) {
	logger := logutil.GetLogger(ctx)
	docs, err := s.catalog.FindByMetadata(ctx, nil)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrCatalog, "catalog", err)
	}
	res := &ReindexResult{}
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := s.Ingest(ctx, doc)
		if err != nil {
			logger.Error("reindex document failed", zap.String("document_id", doc.ID), zap.Error(err))
			res.Failed++
		} else {
			res.Documents++
			res.Chunks += n
		}
		if pause > 0 && i < len(docs)-1 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	logger.Info("reindex finished", zap.Int("documents", res.Documents), zap.Int("chunks", res.Chunks), zap.Int("failed", res.Failed))
	return res, nil
}

func withDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

// storeError tags a vector store failure as an operation failure unless the
// store already reported that it could not initialize.
func storeError(stage string, err error) error {
	if errors.Is(err, appErr.ErrStoreInit) {
		return err
	}
	return appErr.Wrap(appErr.ErrStoreOperation, stage, err)
}
