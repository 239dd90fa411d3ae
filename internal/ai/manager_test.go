package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	apperrors "github.com/xxxsen/mrag/internal/pkg/errors"
)

type stubEmbedder struct {
	dim     int
	calls   [][]string
	failing bool
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	s.calls = append(s.calls, texts)
	if s.failing {
		return nil, fmt.Errorf("rate limited")
	}
	res := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec := make([]float32, s.dim)
		vec[0] = float32(len(text))
		res = append(res, vec)
	}
	return res, nil
}

func (s *stubEmbedder) ModelName() string {
	return "stub"
}

type stubGenerator struct {
	prompt string
	out    string
	err    error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.out, s.err
}

func TestManagerEmbedBatch_SplitsAndKeepsOrder(t *testing.T) {
	emb := &stubEmbedder{dim: 3}
	m := NewManager(nil, emb, ManagerConfig{BatchSize: 2, Dimension: 3})
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := m.EmbedBatch(context.Background(), texts, TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	for i, vec := range vectors {
		require.Equal(t, float32(len(texts[i])), vec[0])
	}
	require.Len(t, emb.calls, 3)
}

func TestManagerEmbedBatch_Empty(t *testing.T) {
	m := NewManager(nil, &stubEmbedder{dim: 3}, ManagerConfig{})
	vectors, err := m.EmbedBatch(context.Background(), nil, TaskTypeDocument)
	require.NoError(t, err)
	require.Empty(t, vectors)
}

func TestManagerEmbed_DimensionMismatch(t *testing.T) {
	m := NewManager(nil, &stubEmbedder{dim: 4}, ManagerConfig{Dimension: 3})
	_, err := m.Embed(context.Background(), "hello", TaskTypeQuery)
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrEmbedding))
	require.Equal(t, "embed", apperrors.StageOf(err))
}

func TestManagerEmbed_UpstreamFailure(t *testing.T) {
	m := NewManager(nil, &stubEmbedder{dim: 3, failing: true}, ManagerConfig{})
	_, err := m.Embed(context.Background(), "hello", TaskTypeQuery)
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrEmbedding))
	require.Contains(t, err.Error(), "rate limited")
}

func TestManagerAnswer_JoinsContext(t *testing.T) {
	gen := &stubGenerator{out: "  Wompi acepta Nequi.  "}
	m := NewManager(gen, nil, ManagerConfig{})
	out, err := m.Answer(context.Background(), "metodos de pago?", []string{"chunk one", "chunk two"})
	require.NoError(t, err)
	require.Equal(t, "Wompi acepta Nequi.", out.Response)
	require.Equal(t, "chunk one\n\nchunk two", out.Context)
	require.True(t, strings.Contains(gen.prompt, "chunk one\n\nchunk two"))
	require.True(t, strings.Contains(gen.prompt, "metodos de pago?"))
}

func TestManagerAnswer_EmptyOutputIsError(t *testing.T) {
	m := NewManager(&stubGenerator{out: "   "}, nil, ManagerConfig{})
	_, err := m.Answer(context.Background(), "q", []string{"c"})
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrGeneration))
}

func TestManagerAnswer_NotConfigured(t *testing.T) {
	m := NewManager(nil, nil, ManagerConfig{})
	_, err := m.Answer(context.Background(), "q", nil)
	require.True(t, errors.Is(err, apperrors.ErrGeneration))
	_, err = m.Embed(context.Background(), "q", TaskTypeQuery)
	require.True(t, errors.Is(err, apperrors.ErrEmbedding))
}

func TestGroupEmbedder_FallsBack(t *testing.T) {
	group := NewGroupEmbedder([]EmbedderEntry{
		{Name: "broken", Embedder: &stubEmbedder{dim: 2, failing: true}},
		{Name: "ok", Embedder: &stubEmbedder{dim: 2}},
	})
	vectors, err := group.Embed(context.Background(), []string{"abc"}, TaskTypeQuery)
	require.NoError(t, err)
	require.Equal(t, float32(3), vectors[0][0])
	require.Equal(t, "broken|ok", group.ModelName())
}

func TestGroupGenerator_ReturnsLastError(t *testing.T) {
	group := NewGroupGenerator([]GeneratorEntry{
		{Name: "a", Generator: &stubGenerator{err: fmt.Errorf("a down")}},
		{Name: "b", Generator: &stubGenerator{err: fmt.Errorf("b down")}},
	})
	_, err := group.Generate(context.Background(), "p")
	require.EqualError(t, err, "b down")
}
