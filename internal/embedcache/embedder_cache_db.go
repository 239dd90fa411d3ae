package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/mrag/internal/ai"
	"github.com/xxxsen/mrag/internal/model"
	"go.uber.org/zap"
)

// CacheStore persists embeddings across restarts.
type CacheStore interface {
	Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, store CacheStore) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store CacheStore
}

func (d *dbEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	modelName := cacheModelName(d.next.ModelName())
	return embedWithCache(ctx, texts, taskType, d.next,
		func(text string) ([]float32, bool, error) {
			values, ok, err := d.store.Get(ctx, modelName, taskType, contentHash(text))
			if ok {
				logutil.GetLogger(ctx).Debug("embedding cache hit (db)", zap.String("task_type", taskType))
			}
			return values, ok, err
		},
		func(text string, values []float32) {
			err := d.store.Save(ctx, &model.EmbeddingCache{
				ModelName:   modelName,
				TaskType:    taskType,
				ContentHash: contentHash(text),
				Dimension:   len(values),
				Embedding:   values,
				Ctime:       time.Now().Unix(),
			})
			if err != nil {
				logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
			}
		},
	)
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}

// embedWithCache looks every text up, embeds only the misses in one call and
// stores the fresh vectors. Output order follows texts.
func embedWithCache(
	ctx context.Context,
	texts []string,
	taskType string,
	next ai.IEmbedder,
	get func(text string) ([]float32, bool, error),
	put func(text string, values []float32),
) ([][]float32, error) {
	res := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		values, ok, err := get(text)
		if err != nil {
			return nil, err
		}
		if ok {
			res[i] = values
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return res, nil
	}
	vectors, err := next.Embed(ctx, missTexts, taskType)
	if err != nil {
		return nil, err
	}
	for i, vec := range vectors {
		if i >= len(missIdx) {
			break
		}
		res[missIdx[i]] = vec
		put(missTexts[i], vec)
	}
	return res, nil
}

func cacheModelName(modelName string) string {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return "unknown"
	}
	return modelName
}

func contentHash(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

func buildCacheKey(modelName, taskType, text string) string {
	return "embed:" + cacheModelName(modelName) + ":" + taskType + ":" + contentHash(text)
}
