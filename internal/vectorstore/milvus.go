package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/mrag/internal/model"
	"go.uber.org/zap"
)

const (
	milvusFieldID        = "id"
	milvusFieldText      = "text"
	milvusFieldMetadata  = "metadata"
	milvusFieldEmbedding = "embedding"

	milvusUpsertBatch  = 100
	milvusPollInterval = 5 * time.Second
	milvusPollAttempts = 60
)

type milvusConfig struct {
	Address string `json:"address"`
	APIKey  string `json:"api_key"`
	DBName  string `json:"db_name"`
}

// milvusStore is the managed index backend. Milvus reports cosine
// similarity, which is turned into a distance before leaving this file.
type milvusStore struct {
	cfg          milvusConfig
	collection   string
	dim          int
	pollInterval time.Duration
	pollAttempts int
	guard        initGuard
	cli          client.Client
}

func (s *milvusStore) Name() string {
	return "milvus"
}

func (s *milvusStore) Initialize(ctx context.Context) error {
	return s.guard.Do(ctx, s.initialize)
}

func (s *milvusStore) initialize(ctx context.Context) error {
	logger := logutil.GetLogger(ctx).With(zap.String("collection", s.collection))
	if s.cli == nil {
		cli, err := client.NewClient(ctx, client.Config{
			Address: s.cfg.Address,
			APIKey:  s.cfg.APIKey,
			DBName:  s.cfg.DBName,
		})
		if err != nil {
			return fmt.Errorf("connect milvus: %w", err)
		}
		s.cli = cli
	}
	exists, err := s.cli.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		logger.Info("creating milvus collection", zap.Int("dimension", s.dim))
		schema := entity.NewSchema().
			WithName(s.collection).
			WithDescription("document chunks").
			WithField(entity.NewField().WithName(milvusFieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(512).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(milvusFieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName(milvusFieldMetadata).WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192)).
			WithField(entity.NewField().WithName(milvusFieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))
		if err := s.cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		idx, err := entity.NewIndexAUTOINDEX(entity.COSINE)
		if err != nil {
			return err
		}
		if err := s.cli.CreateIndex(ctx, s.collection, milvusFieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	if err := s.cli.LoadCollection(ctx, s.collection, true); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return s.waitReady(ctx)
}

func (s *milvusStore) waitReady(ctx context.Context) error {
	for attempt := 1; attempt <= s.pollAttempts; attempt++ {
		state, err := s.cli.GetLoadState(ctx, s.collection, nil)
		if err != nil {
			return fmt.Errorf("get load state: %w", err)
		}
		if state == entity.LoadStateLoaded {
			return nil
		}
		logutil.GetLogger(ctx).Debug("waiting for milvus collection", zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
	return fmt.Errorf("collection %s not ready after %d attempts: %w", s.collection, s.pollAttempts, errTerminal)
}

func (s *milvusStore) AddVector(ctx context.Context, record *model.VectorRecord) error {
	return s.AddVectors(ctx, []*model.VectorRecord{record})
}

func (s *milvusStore) AddVectors(ctx context.Context, records []*model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := checkRecords(records, s.dim); err != nil {
		return err
	}
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	for start := 0; start < len(records); start += milvusUpsertBatch {
		end := start + milvusUpsertBatch
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		ids := make([]string, 0, len(batch))
		texts := make([]string, 0, len(batch))
		metas := make([]string, 0, len(batch))
		vectors := make([][]float32, 0, len(batch))
		for _, r := range batch {
			md, err := encodeMetadata(r.Metadata)
			if err != nil {
				return err
			}
			ids = append(ids, r.ID)
			texts = append(texts, r.Text)
			metas = append(metas, md)
			vectors = append(vectors, r.Vector)
		}
		_, err := s.cli.Upsert(ctx, s.collection, "",
			entity.NewColumnVarChar(milvusFieldID, ids),
			entity.NewColumnVarChar(milvusFieldText, texts),
			entity.NewColumnVarChar(milvusFieldMetadata, metas),
			entity.NewColumnFloatVector(milvusFieldEmbedding, s.dim, vectors),
		)
		if err != nil {
			return fmt.Errorf("upsert batch at %d: %w", start, err)
		}
	}
	return nil
}

func (s *milvusStore) SearchSimilar(ctx context.Context, query []float32, limit int, threshold float64) ([]*model.SearchResult, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, err
	}
	res, err := s.cli.Search(ctx, s.collection, nil, "",
		[]string{milvusFieldText, milvusFieldMetadata},
		[]entity.Vector{entity.FloatVector(query)},
		milvusFieldEmbedding, entity.COSINE, limit, sp,
	)
	if err != nil {
		return nil, err
	}
	var hits []milvusHit
	for _, r := range res {
		ids, ok := r.IDs.(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		idData := ids.Data()
		textData := varCharData(r.Fields, milvusFieldText)
		metaData := varCharData(r.Fields, milvusFieldMetadata)
		for i := 0; i < r.ResultCount && i < len(idData) && i < len(r.Scores); i++ {
			hit := milvusHit{ID: idData[i], Similarity: float64(r.Scores[i])}
			if i < len(textData) {
				hit.Text = textData[i]
			}
			if i < len(metaData) {
				hit.Metadata = metaData[i]
			}
			hits = append(hits, hit)
		}
	}
	return normalizeSimilarity(hits, limit, threshold)
}

type milvusHit struct {
	ID         string
	Text       string
	Metadata   string
	Similarity float64
}

// normalizeSimilarity converts similarities into distances (1 - similarity)
// and applies the caller threshold, itself a similarity, as 1 - threshold.
func normalizeSimilarity(hits []milvusHit, limit int, threshold float64) ([]*model.SearchResult, error) {
	cutoff := 1 - threshold
	if threshold >= MaxDistance {
		cutoff = MaxDistance
	}
	results := make([]*model.SearchResult, 0, len(hits))
	for _, h := range hits {
		meta, err := decodeMetadata(h.ID, h.Metadata)
		if err != nil {
			return nil, err
		}
		results = append(results, &model.SearchResult{
			Record: &model.VectorRecord{ID: h.ID, Text: h.Text, Metadata: meta},
			Score:  1 - h.Similarity,
		})
	}
	return rankResults(results, limit, cutoff), nil
}

func varCharData(fields client.ResultSet, name string) []string {
	for _, field := range fields {
		if field.Name() != name {
			continue
		}
		if col, ok := field.(*entity.ColumnVarChar); ok {
			return col.Data()
		}
	}
	return nil
}

func (s *milvusStore) DeleteVector(ctx context.Context, id string) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	return s.cli.DeleteByPks(ctx, s.collection, "", entity.NewColumnVarChar(milvusFieldID, []string{id}))
}

func (s *milvusStore) VectorExists(ctx context.Context, id string) (bool, error) {
	if err := s.Initialize(ctx); err != nil {
		return false, err
	}
	rs, err := s.cli.QueryByPks(ctx, s.collection, nil, entity.NewColumnVarChar(milvusFieldID, []string{id}), []string{milvusFieldID})
	if err != nil {
		return false, err
	}
	for _, col := range rs {
		if col.Name() == milvusFieldID {
			return col.Len() > 0, nil
		}
	}
	return false, nil
}

func (s *milvusStore) Stats(ctx context.Context) (*Stats, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	stats, err := s.cli.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	count, err := strconv.ParseInt(strings.TrimSpace(stats["row_count"]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse row_count: %w", err)
	}
	return &Stats{Count: count}, nil
}

func (s *milvusStore) Close() error {
	if s.cli == nil {
		return nil
	}
	return s.cli.Close()
}

func createMilvusStore(opts *Options) (Store, error) {
	cfg := milvusConfig{}
	if err := decodeConfig(opts.Data, &cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, fmt.Errorf("milvus address is required")
	}
	return &milvusStore{
		cfg:          cfg,
		collection:   opts.Table,
		dim:          opts.Dimension,
		pollInterval: milvusPollInterval,
		pollAttempts: milvusPollAttempts,
	}, nil
}

func init() {
	Register("milvus", createMilvusStore)
}
