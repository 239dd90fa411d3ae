package embedcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/mrag/internal/model"
)

type countingEmbedder struct {
	inputs [][]string
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	c.inputs = append(c.inputs, texts)
	res := make([][]float32, 0, len(texts))
	for _, text := range texts {
		res = append(res, []float32{float32(len(text)), 1})
	}
	return res, nil
}

func (c *countingEmbedder) ModelName() string {
	return "counting"
}

type memoryCacheStore struct {
	mu    sync.Mutex
	items map[string]*model.EmbeddingCache
}

func (m *memoryCacheStore) Get(ctx context.Context, modelName, taskType, hash string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[modelName+taskType+hash]
	if !ok {
		return nil, false, nil
	}
	return item.Embedding, true, nil
}

func (m *memoryCacheStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ModelName+item.TaskType+item.ContentHash] = item
	return nil
}

func TestLruEmbedder_OnlyEmbedsMisses(t *testing.T) {
	next := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(next, 16, time.Minute)

	_, err := e.Embed(context.Background(), []string{"a", "bb"}, "q")
	require.NoError(t, err)
	res, err := e.Embed(context.Background(), []string{"bb", "ccc", "a"}, "q")
	require.NoError(t, err)

	require.Equal(t, [][]float32{{2, 1}, {3, 1}, {1, 1}}, res)
	require.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, next.inputs)
}

func TestLruEmbedder_TaskTypeIsPartOfKey(t *testing.T) {
	next := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(next, 16, time.Minute)
	_, err := e.Embed(context.Background(), []string{"a"}, "doc")
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), []string{"a"}, "query")
	require.NoError(t, err)
	require.Len(t, next.inputs, 2)
}

func TestDBEmbedder_PersistsVectors(t *testing.T) {
	next := &countingEmbedder{}
	store := &memoryCacheStore{items: map[string]*model.EmbeddingCache{}}
	e := WrapDBCacheToEmbedder(next, store)

	_, err := e.Embed(context.Background(), []string{"hello"}, "doc")
	require.NoError(t, err)
	require.Len(t, store.items, 1)
	for _, item := range store.items {
		require.Equal(t, "counting", item.ModelName)
		require.Equal(t, 2, item.Dimension)
	}

	res, err := e.Embed(context.Background(), []string{"hello"}, "doc")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{5, 1}}, res)
	require.Len(t, next.inputs, 1)
}

func TestWrap_DisabledReturnsOriginal(t *testing.T) {
	next := &countingEmbedder{}
	require.Equal(t, next, WrapLruCacheToEmbedder(next, 0, time.Minute))
	require.Equal(t, next, WrapDBCacheToEmbedder(next, nil))
}
