package service

import (
	"context"

	"github.com/xxxsen/mrag/internal/ai"
)

type Chunker interface {
	Chunk(raw string) []string
}

type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error)
}

type Answerer interface {
	Answer(ctx context.Context, query string, contextChunks []string) (*ai.Answer, error)
}
