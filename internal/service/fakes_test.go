package service

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mrag/internal/ai"
	"github.com/xxxsen/mrag/internal/vectorstore"
)

const testDim = 128

// wordEmbedder hashes words of three or more letters into a normalized
// bag-of-words vector, so texts sharing words land close together.
type wordEmbedder struct {
	mu      sync.Mutex
	batches int
	texts   int
	fail    error
}

func (e *wordEmbedder) vector(text string) []float32 {
	out := make([]float32, testDim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		out[h.Sum32()%testDim]++
	}
	var norm float64
	for _, v := range out {
		norm += float64(v * v)
	}
	if norm == 0 {
		out[0] = 1
		return out
	}
	n := float32(math.Sqrt(norm))
	for i := range out {
		out[i] /= n
	}
	return out
}

func (e *wordEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	vs, err := e.EmbedBatch(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (e *wordEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return nil, e.fail
	}
	e.batches++
	e.texts += len(texts)
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, e.vector(t))
	}
	return out, nil
}

func (e *wordEmbedder) embeddedTexts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.texts
}

type stubAnswerer struct {
	calls   int
	lastCtx []string
	answer  string
	err     error
}

func (a *stubAnswerer) Answer(ctx context.Context, query string, contextChunks []string) (*ai.Answer, error) {
	a.calls++
	a.lastCtx = contextChunks
	if a.err != nil {
		return nil, a.err
	}
	return &ai.Answer{Response: a.answer, Context: strings.Join(contextChunks, "\n\n")}, nil
}

func newTestStore(t *testing.T) vectorstore.Store {
	t.Helper()
	store, err := vectorstore.New("embedded", &vectorstore.Options{
		Table:     "rag_documents",
		Dimension: testDim,
		Data:      map[string]interface{}{"path": filepath.Join(t.TempDir(), "vectors.db")},
	})
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))
	return store
}

func newTestChunker(t *testing.T) *ai.TextChunker {
	t.Helper()
	c, err := ai.NewTextChunker(ai.DefaultChunkSize, ai.DefaultChunkOverlap)
	require.NoError(t, err)
	return c
}

// failingStats reports a stats error so the probe fallback paths run.
type failingStats struct {
	vectorstore.Store
}

func (f *failingStats) Stats(ctx context.Context) (*vectorstore.Stats, error) {
	return nil, errors.New("stats unavailable")
}

// staticSource serves an in-memory corpus.
type staticSource struct {
	files map[string]string
	order []string
}

func (s *staticSource) Type() string {
	return "static"
}

func (s *staticSource) List(ctx context.Context) ([]string, error) {
	return s.order, nil
}

func (s *staticSource) Read(ctx context.Context, name string) (string, error) {
	text, ok := s.files[name]
	if !ok {
		return "", errors.New("missing file")
	}
	return text, nil
}
