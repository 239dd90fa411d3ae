package vectorstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/mrag/internal/model"
	apperrors "github.com/xxxsen/mrag/internal/pkg/errors"
)

func newTestEmbeddedStore(t *testing.T, dim int) *embeddedStore {
	t.Helper()
	s, err := New("embedded", &Options{
		Table:     "chunks",
		Dimension: dim,
		Data:      map[string]interface{}{"path": filepath.Join(t.TempDir(), "vectors.db")},
	})
	require.NoError(t, err)
	store := s.(*embeddedStore)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(id, category string, vec ...float32) *model.VectorRecord {
	return &model.VectorRecord{
		ID:       id,
		Text:     "text of " + id,
		Vector:   vec,
		Metadata: model.VectorMetadata{Category: category, Title: id},
	}
}

func TestEmbeddedStore_InitializeIsIdempotent(t *testing.T) {
	s := newTestEmbeddedStore(t, 3)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Initialize(ctx))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), st.Count)
}

func TestEmbeddedStore_ConcurrentInitialize(t *testing.T) {
	s := newTestEmbeddedStore(t, 3)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Initialize(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.True(t, s.guard.Ready())
}

func TestEmbeddedStore_PlaceholderNeverReturned(t *testing.T) {
	s := newTestEmbeddedStore(t, 3)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	res, err := s.SearchSimilar(ctx, []float32{0.1, 0.1, 0.1}, 10, MaxDistance)
	require.NoError(t, err)
	require.Empty(t, res)

	exists, err := s.VectorExists(ctx, embeddedReservedID)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestEmbeddedStore_SearchOrdersAndFilters(t *testing.T) {
	s := newTestEmbeddedStore(t, 2)
	ctx := context.Background()
	require.NoError(t, s.AddVectors(ctx, []*model.VectorRecord{
		record("same", "kb", 1, 0),
		record("close", "kb", 1, 0.2),
		record("orthogonal", "kb", 0, 1),
		record("opposite", "kb", -1, 0),
	}))

	res, err := s.SearchSimilar(ctx, []float32{1, 0}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, "same", res[0].Record.ID)
	require.Equal(t, "close", res[1].Record.ID)
	require.InDelta(t, 0, res[0].Score, 1e-6)
	require.LessOrEqual(t, res[0].Score, res[1].Score)
	require.Equal(t, "kb", res[1].Record.Metadata.Category)

	res, err = s.SearchSimilar(ctx, []float32{1, 0}, 3, MaxDistance)
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, "orthogonal", res[2].Record.ID)
}

func TestEmbeddedStore_DeleteAndExists(t *testing.T) {
	s := newTestEmbeddedStore(t, 2)
	ctx := context.Background()
	require.NoError(t, s.AddVector(ctx, record("a", "kb", 1, 1)))

	exists, err := s.VectorExists(ctx, "a")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, s.DeleteVector(ctx, "a"))
	exists, err = s.VectorExists(ctx, "a")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, s.DeleteVector(ctx, "missing"))
}

func TestEmbeddedStore_RejectsWrongDimension(t *testing.T) {
	s := newTestEmbeddedStore(t, 3)
	err := s.AddVector(context.Background(), record("a", "kb", 1, 1))
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrInvalid))
}

func TestEmbeddedStore_StatsCountsRecords(t *testing.T) {
	s := newTestEmbeddedStore(t, 2)
	ctx := context.Background()
	require.NoError(t, s.AddVectors(ctx, []*model.VectorRecord{record("a", "kb", 1, 0), record("b", "kb", 0, 1)}))
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), st.Count)
}

func TestNew_Validation(t *testing.T) {
	_, err := New("unknown", &Options{Table: "t", Dimension: 3})
	require.Error(t, err)
	_, err = New("embedded", &Options{Table: "t"})
	require.Error(t, err)
	_, err = New("pgvector", &Options{Table: "t", Dimension: 3})
	require.Error(t, err)
	_, err = New("milvus", &Options{Table: "t", Dimension: 3})
	require.Error(t, err)
}

func TestEmbeddedStore_CorruptMetadataFailsSearch(t *testing.T) {
	s := newTestEmbeddedStore(t, 2)
	ctx := context.Background()
	require.NoError(t, s.AddVectors(ctx, []*model.VectorRecord{record("doc_chunk_0", "kb", 1, 0)}))
	_, err := s.db.ExecContext(ctx, `UPDATE "chunks" SET metadata = '{broken' WHERE id = ?`, "doc_chunk_0")
	require.NoError(t, err)

	_, err = s.SearchSimilar(ctx, []float32{1, 0}, 10, MaxDistance)
	require.Error(t, err)
	require.Contains(t, err.Error(), "doc_chunk_0")
}
