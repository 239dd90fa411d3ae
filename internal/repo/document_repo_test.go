package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mrag/internal/db/dbtest"
	"github.com/xxxsen/mrag/internal/model"
	"github.com/xxxsen/mrag/internal/repo"
)

func TestDocumentRepoSaveFindDelete(t *testing.T) {
	conn, cleanup := dbtest.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	docs := repo.NewDocumentRepo(conn)
	_, err := conn.ExecContext(ctx, `DELETE FROM documents`)
	require.NoError(t, err)

	now := time.UnixMilli(time.Now().UnixMilli()).UTC()
	doc := &model.Document{
		ID:      "doc-1",
		Content: "Wompi processes online payments securely.",
		Metadata: model.DocumentMetadata{
			Title:     "Wompi",
			Source:    model.DefaultSource,
			Category:  model.DefaultCategory,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	require.NoError(t, docs.Save(ctx, doc))

	fetched, err := docs.FindByID(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, doc.Content, fetched.Content)
	require.True(t, now.Equal(fetched.Metadata.CreatedAt))

	doc.Metadata.Title = "Wompi v2"
	require.NoError(t, docs.Save(ctx, doc))
	found, err := docs.FindByMetadata(ctx, map[string]string{"category": model.DefaultCategory, "title": "Wompi v2"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, docs.Delete(ctx, "doc-1"))
	require.NoError(t, docs.Delete(ctx, "doc-1"))
	missing, err := docs.FindByID(ctx, "doc-1")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestEmbeddingCacheRepoRoundTrip(t *testing.T) {
	conn, cleanup := dbtest.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	cache := repo.NewEmbeddingCacheRepo(conn)

	require.NoError(t, cache.Save(ctx, &model.EmbeddingCache{
		ModelName:   "m",
		TaskType:    "RETRIEVAL_DOCUMENT",
		ContentHash: "h1",
		Embedding:   []float32{1, 2, 3},
		Ctime:       100,
	}))
	values, ok, err := cache.Get(ctx, "m", "RETRIEVAL_DOCUMENT", "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, values)

	n, err := cache.DeleteBefore(ctx, 101)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, int64(1))
	_, ok, err = cache.Get(ctx, "m", "RETRIEVAL_DOCUMENT", "h1")
	require.NoError(t, err)
	require.False(t, ok)
}
