package vectorstore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xxxsen/mrag/internal/pkg/errors"
)

// loadingMilvus reports an existing collection that never finishes loading.
type loadingMilvus struct {
	client.Client
	polls int32
}

func (m *loadingMilvus) HasCollection(ctx context.Context, name string) (bool, error) {
	return true, nil
}

func (m *loadingMilvus) LoadCollection(ctx context.Context, name string, async bool, opts ...client.LoadCollectionOption) error {
	return nil
}

func (m *loadingMilvus) GetLoadState(ctx context.Context, name string, partitions []string) (entity.LoadState, error) {
	atomic.AddInt32(&m.polls, 1)
	return entity.LoadStateLoading, nil
}

func newLoadingMilvusStore(cli client.Client) *milvusStore {
	return &milvusStore{
		collection:   "chunks",
		dim:          4,
		pollInterval: time.Millisecond,
		pollAttempts: 5,
		cli:          cli,
	}
}

func TestMilvusStore_ReadinessTimeoutIsFatal(t *testing.T) {
	cli := &loadingMilvus{}
	s := newLoadingMilvusStore(cli)
	ctx := context.Background()

	err := s.Initialize(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrStoreInit))
	require.Contains(t, err.Error(), "not ready after 5 attempts")
	require.Equal(t, int32(5), atomic.LoadInt32(&cli.polls))

	require.Equal(t, err, s.Initialize(ctx))
	_, searchErr := s.SearchSimilar(ctx, []float32{1, 0, 0, 0}, 3, 0.5)
	require.True(t, errors.Is(searchErr, apperrors.ErrStoreInit))
	_, statsErr := s.Stats(ctx)
	require.True(t, errors.Is(statsErr, apperrors.ErrStoreInit))
	require.Equal(t, int32(5), atomic.LoadInt32(&cli.polls))
	require.False(t, s.guard.Ready())
}

func TestInitGuard_WrapsFailuresAsStoreInit(t *testing.T) {
	var g initGuard
	err := g.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("connection refused")
	})
	require.True(t, errors.Is(err, apperrors.ErrStoreInit))
	require.Equal(t, "initialize", apperrors.StageOf(err))
	require.Contains(t, err.Error(), "connection refused")
}
