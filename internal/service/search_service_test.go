package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mrag/internal/model"
	appErr "github.com/xxxsen/mrag/internal/pkg/errors"
	"github.com/xxxsen/mrag/internal/repo"
	"github.com/xxxsen/mrag/internal/vectorstore"
)

func newTestPipelines(t *testing.T) (*IngestService, *SearchService, *stubAnswerer) {
	t.Helper()
	emb := &wordEmbedder{}
	store := newTestStore(t)
	answerer := &stubAnswerer{answer: "Wompi is a Colombian payment gateway."}
	ingest := NewIngestService(newTestChunker(t), emb, store, repo.NewMemoryDocumentRepo())
	return ingest, NewSearchService(emb, answerer, store), answerer
}

func TestWompiIngestSearchChat(t *testing.T) {
	ingest, search, answerer := newTestPipelines(t)
	ctx := context.Background()

	added, err := ingest.AddDocument(ctx, AddDocumentInput{Content: wompiDoc, Title: "Wompi"})
	require.NoError(t, err)

	res, err := search.Search(ctx, SearchInput{Query: "Wompi payment gateway", Category: "knowledge_base"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	top := res.Results[0]
	require.Equal(t, added.DocumentID, top.Record.Metadata.OriginalDocumentID)
	require.Contains(t, top.Record.Text, "Wompi")
	require.LessOrEqual(t, top.Score, DefaultSearchThreshold)
	require.Empty(t, res.LLMResponse)
	require.Zero(t, answerer.calls)

	chat, err := search.Chat(ctx, "What is Wompi?", "knowledge_base")
	require.NoError(t, err)
	require.NotEmpty(t, chat.Response)
	require.NotEmpty(t, chat.Sources)
	require.Equal(t, "Wompi", chat.Sources[0].Title)
	require.Equal(t, "manual", chat.Sources[0].Source)
	require.Equal(t, 1, answerer.calls)
	require.Contains(t, answerer.lastCtx[0], "Wompi")
}

func TestSearch_CategoryFilterNeverLeaks(t *testing.T) {
	ingest, search, _ := newTestPipelines(t)
	ctx := context.Background()
	_, err := ingest.AddDocument(ctx, AddDocumentInput{Content: "Refund policy for card payments processed by Wompi", Category: "billing"})
	require.NoError(t, err)
	_, err = ingest.AddDocument(ctx, AddDocumentInput{Content: "Refund policy for card payments processed by Wompi support team", Category: "support"})
	require.NoError(t, err)

	threshold := 1.0
	res, err := search.Search(ctx, SearchInput{Query: "refund policy card payments", Threshold: &threshold, Category: "billing"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	for _, r := range res.Results {
		require.Equal(t, "billing", r.Record.Metadata.Category)
	}

	all, err := search.Search(ctx, SearchInput{Query: "refund policy card payments", Threshold: &threshold})
	require.NoError(t, err)
	require.Len(t, all.Results, 2)
}

func TestSearch_NoResultsSkipsGeneration(t *testing.T) {
	ingest, search, answerer := newTestPipelines(t)
	ctx := context.Background()
	_, err := ingest.AddDocument(ctx, AddDocumentInput{Content: wompiDoc})
	require.NoError(t, err)

	res, err := search.Search(ctx, SearchInput{Query: "zebra migration", IncludeResponse: true})
	require.NoError(t, err)
	require.Empty(t, res.Results)
	require.Empty(t, res.LLMResponse)
	require.Zero(t, answerer.calls)
}

func TestSearch_Validation(t *testing.T) {
	_, search, _ := newTestPipelines(t)
	ctx := context.Background()
	tooHigh := 1.5

	cases := []SearchInput{
		{Query: "   "},
		{Query: "wompi", Limit: MaxSearchLimit + 1},
		{Query: "wompi", Limit: -1},
		{Query: "wompi", Threshold: &tooHigh},
	}
	for _, in := range cases {
		_, err := search.Search(ctx, in)
		require.Error(t, err)
		require.True(t, appErr.IsInvalid(err))
	}
}

func TestSearch_ZeroThresholdIsHonoured(t *testing.T) {
	ingest, search, _ := newTestPipelines(t)
	ctx := context.Background()
	_, err := ingest.AddDocument(ctx, AddDocumentInput{Content: wompiDoc})
	require.NoError(t, err)

	zero := 0.0
	res, err := search.Search(ctx, SearchInput{Query: "Wompi payment gateway", Threshold: &zero})
	require.NoError(t, err)
	require.Empty(t, res.Results)
}

func TestChat_GenerationFailure(t *testing.T) {
	ingest, search, answerer := newTestPipelines(t)
	ctx := context.Background()
	_, err := ingest.AddDocument(ctx, AddDocumentInput{Content: wompiDoc})
	require.NoError(t, err)
	answerer.err = errors.New("model overloaded")

	_, err = search.Chat(ctx, "What is Wompi?", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, appErr.ErrGeneration))
	require.Equal(t, "generate", appErr.StageOf(err))
}

func TestSearch_IncludeResponseReturnsContext(t *testing.T) {
	ingest, search, _ := newTestPipelines(t)
	ctx := context.Background()
	_, err := ingest.AddDocument(ctx, AddDocumentInput{Content: wompiDoc})
	require.NoError(t, err)

	res, err := search.Search(ctx, SearchInput{Query: "Wompi payment gateway", IncludeResponse: true})
	require.NoError(t, err)
	require.Equal(t, "Wompi is a Colombian payment gateway.", res.LLMResponse)
	require.Contains(t, res.Context, "Wompi processes card payments")
}

// uninitializedStore fails every call the way a store that never became
// ready does.
type uninitializedStore struct {
	vectorstore.Store
}

func (uninitializedStore) SearchSimilar(ctx context.Context, query []float32, limit int, threshold float64) ([]*model.SearchResult, error) {
	return nil, appErr.Wrap(appErr.ErrStoreInit, "initialize", errors.New("collection not ready after 60 attempts"))
}

func (uninitializedStore) AddVectors(ctx context.Context, records []*model.VectorRecord) error {
	return appErr.Wrap(appErr.ErrStoreInit, "initialize", errors.New("collection not ready after 60 attempts"))
}

func TestStoreInitFailureKeepsItsKind(t *testing.T) {
	ctx := context.Background()
	store := uninitializedStore{newTestStore(t)}
	search := NewSearchService(&wordEmbedder{}, &stubAnswerer{}, store)
	_, err := search.Search(ctx, SearchInput{Query: "Wompi payment gateway"})
	require.True(t, errors.Is(err, appErr.ErrStoreInit))
	require.False(t, errors.Is(err, appErr.ErrStoreOperation))

	ingest := NewIngestService(newTestChunker(t), &wordEmbedder{}, store, repo.NewMemoryDocumentRepo())
	_, err = ingest.AddDocument(ctx, AddDocumentInput{Content: wompiDoc})
	require.True(t, errors.Is(err, appErr.ErrStoreInit))
	require.False(t, errors.Is(err, appErr.ErrStoreOperation))
}
