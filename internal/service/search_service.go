package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrag/internal/ai"
	"github.com/xxxsen/mrag/internal/metrics"
	"github.com/xxxsen/mrag/internal/model"
	appErr "github.com/xxxsen/mrag/internal/pkg/errors"
	"github.com/xxxsen/mrag/internal/vectorstore"
)

const (
	DefaultSearchLimit     = 10
	MaxSearchLimit         = 50
	DefaultSearchThreshold = 0.5

	chatLimit     = 5
	chatThreshold = 0.7
)

type SearchInput struct {
	Query           string
	Limit           int
	Threshold       *float64
	Category        string
	IncludeResponse bool
}

type SearchOutput struct {
	Results     []*model.SearchResult
	Query       string
	LLMResponse string
	Context     string
}

type ChatSource struct {
	Title  string  `json:"title"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

type ChatOutput struct {
	Response string       `json:"response"`
	Sources  []ChatSource `json:"sources"`
}

type SearchService struct {
	embedder Embedder
	answerer Answerer
	store    vectorstore.Store
}

func NewSearchService(embedder Embedder, answerer Answerer, store vectorstore.Store) *SearchService {
	return &SearchService{embedder: embedder, answerer: answerer, store: store}
}

// Search embeds the query, ranks stored chunks and optionally answers from
// them. The category filter runs after ranking, so fewer than Limit results
// may come back.
func (s *SearchService) Search(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, appErr.Wrap(appErr.ErrInvalid, "validate", fmt.Errorf("query is required"))
	}
	limit := input.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 1 || limit > MaxSearchLimit {
		return nil, appErr.Wrap(appErr.ErrInvalid, "validate", fmt.Errorf("limit must be between 1 and %d", MaxSearchLimit))
	}
	threshold := DefaultSearchThreshold
	if input.Threshold != nil {
		threshold = *input.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, appErr.Wrap(appErr.ErrInvalid, "validate", fmt.Errorf("threshold must be between 0 and 1"))
	}
	logger := logutil.GetLogger(ctx).With(zap.Int("limit", limit), zap.Float64("threshold", threshold), zap.String("category", input.Category))

	start := time.Now()
	vector, err := s.embedder.Embed(ctx, query, ai.TaskTypeQuery)
	metrics.ObserveStage("embed", start, err)
	if err != nil {
		logger.Error("embed query failed", zap.Error(err))
		return nil, appErr.Wrap(appErr.ErrEmbedding, "embed", err)
	}

	start = time.Now()
	results, err := s.store.SearchSimilar(ctx, vector, limit, threshold)
	metrics.ObserveStage("search", start, err)
	if err != nil {
		logger.Error("search vectors failed", zap.Error(err))
		return nil, storeError("search", err)
	}
	results = filterCategory(results, input.Category)

	out := &SearchOutput{Results: results, Query: query}
	if input.IncludeResponse && len(results) > 0 {
		texts := make([]string, 0, len(results))
		for _, r := range results {
			texts = append(texts, r.Record.Text)
		}
		start = time.Now()
		answer, err := s.answerer.Answer(ctx, query, texts)
		metrics.ObserveStage("generate", start, err)
		if err != nil {
			logger.Error("generate answer failed", zap.Error(err))
			return nil, appErr.Wrap(appErr.ErrGeneration, "generate", err)
		}
		out.LLMResponse = answer.Response
		out.Context = answer.Context
	}
	mode := "search"
	if input.IncludeResponse {
		mode = "answer"
	}
	metrics.ObserveSearch(mode, len(results))
	logger.Debug("search finished", zap.Int("results", len(results)))
	return out, nil
}

// Chat is Search with the conversational preset: fewer, closer chunks and
// a generated answer.
func (s *SearchService) Chat(ctx context.Context, query, category string) (*ChatOutput, error) {
	threshold := chatThreshold
	res, err := s.Search(ctx, SearchInput{
		Query:           query,
		Limit:           chatLimit,
		Threshold:       &threshold,
		Category:        category,
		IncludeResponse: true,
	})
	if err != nil {
		return nil, err
	}
	out := &ChatOutput{Response: res.LLMResponse, Sources: make([]ChatSource, 0, len(res.Results))}
	for _, r := range res.Results {
		out.Sources = append(out.Sources, ChatSource{
			Title:  r.Record.Metadata.Title,
			Source: r.Record.Metadata.Source,
			Score:  r.Score,
		})
	}
	return out, nil
}

func filterCategory(results []*model.SearchResult, category string) []*model.SearchResult {
	category = strings.TrimSpace(category)
	if category == "" {
		return results
	}
	kept := make([]*model.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Record != nil && r.Record.Metadata.Category == category {
			kept = append(kept, r)
		}
	}
	return kept
}
