package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/mrag/internal/ai"
	"go.uber.org/zap"
)

func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	modelName := l.next.ModelName()
	return embedWithCache(ctx, texts, taskType, l.next,
		func(text string) ([]float32, bool, error) {
			cached, ok := l.cache.Get(buildCacheKey(modelName, taskType, text))
			if !ok {
				return nil, false, nil
			}
			logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.String("task_type", taskType))
			return cloneEmbedding(cached), true, nil
		},
		func(text string, values []float32) {
			l.cache.Add(buildCacheKey(modelName, taskType, text), cloneEmbedding(values))
		},
	)
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
