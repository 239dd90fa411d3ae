package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/xxxsen/mrag/internal/pkg/errors"
)

type ManagerConfig struct {
	Timeout   int
	BatchSize int
	Dimension int
}

// Manager owns the embedding and answer generation calls used by the
// ingestion and retrieval pipelines.
type Manager struct {
	generator IGenerator
	embedder  IEmbedder
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Manager{
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
	}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch keeps input order and splits large inputs into provider sized batches.
func (m *Manager) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if m.embedder == nil {
		return nil, apperrors.Wrap(apperrors.ErrEmbedding, "embed", ErrUnavailable)
	}
	if len(texts) == 0 {
		return nil, nil
	}
	res := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := m.embedBatch(ctx, texts[start:end], taskType)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrEmbedding, "embed", err)
		}
		res = append(res, vectors...)
	}
	return res, nil
}

func (m *Manager) embedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	vectors, err := m.embedder.Embed(ctx, texts, taskType)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(vectors), len(texts))
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		if m.cfg.Dimension > 0 && len(vec) != m.cfg.Dimension {
			return nil, fmt.Errorf("embedding dimension mismatch, expected %d got %d", m.cfg.Dimension, len(vec))
		}
	}
	return vectors, nil
}

// Answer is a generated response together with the context it was
// grounded on.
type Answer struct {
	Response string
	Context  string
}

// Answer asks the generator to answer query using only the supplied context.
func (m *Manager) Answer(ctx context.Context, query string, contextChunks []string) (*Answer, error) {
	if m.generator == nil {
		return nil, apperrors.Wrap(apperrors.ErrGeneration, "generate", ErrUnavailable)
	}
	joined := strings.Join(contextChunks, "\n\n")
	prompt := fmt.Sprintf(`You are a virtual assistant for the documents below.
Answer the question using only the provided context.
- Use the same language as the question.
- If the context does not contain the answer, say so.

CONTEXT:
%s

QUESTION: %s

ANSWER:`, joined, query)
	text, err := m.generateText(ctx, m.generator, prompt)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrGeneration, "generate", err)
	}
	return &Answer{Response: text, Context: joined}, nil
}

func (m *Manager) generateText(ctx context.Context, gen IGenerator, prompt string) (string, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	resp, err := gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
}

func (m *Manager) Dimension() int {
	return m.cfg.Dimension
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}
