package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mrag/internal/model"
	"github.com/xxxsen/mrag/internal/pkg/response"
	"github.com/xxxsen/mrag/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchRequest struct {
	Query           string   `json:"query" binding:"required,min=3"`
	Limit           int      `json:"limit" binding:"omitempty,min=1,max=50"`
	Threshold       *float64 `json:"threshold" binding:"omitempty,min=0,max=1"`
	Category        string   `json:"category"`
	IncludeResponse bool     `json:"includeResponse"`
}

type searchResultItem struct {
	ID       string               `json:"id"`
	Text     string               `json:"text"`
	Score    float64              `json:"score"`
	Metadata model.VectorMetadata `json:"metadata"`
}

type searchResponse struct {
	Results      []searchResultItem `json:"results"`
	Query        string             `json:"query"`
	TotalResults int                `json:"totalResults"`
	LLMResponse  string             `json:"llmResponse,omitempty"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "query needs at least 3 characters, limit must be 1-50 and threshold 0-1")
		return
	}
	if req.Category == "" {
		req.Category = model.DefaultCategory
	}
	res, err := h.search.Search(c.Request.Context(), service.SearchInput{
		Query:           req.Query,
		Limit:           req.Limit,
		Threshold:       req.Threshold,
		Category:        req.Category,
		IncludeResponse: req.IncludeResponse,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	items := make([]searchResultItem, 0, len(res.Results))
	for _, r := range res.Results {
		items = append(items, searchResultItem{
			ID:       r.Record.ID,
			Text:     r.Record.Text,
			Score:    r.Score,
			Metadata: r.Record.Metadata,
		})
	}
	response.Success(c, searchResponse{
		Results:      items,
		Query:        res.Query,
		TotalResults: len(items),
		LLMResponse:  res.LLMResponse,
	})
}

type chatRequest struct {
	Query    string `json:"query" binding:"required"`
	Category string `json:"category"`
}

type chatResponse struct {
	Response     string               `json:"response"`
	Sources      []service.ChatSource `json:"sources"`
	TotalSources int                  `json:"totalSources"`
}

func (h *SearchHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "query is required")
		return
	}
	if req.Category == "" {
		req.Category = model.DefaultCategory
	}
	res, err := h.search.Chat(c.Request.Context(), req.Query, req.Category)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, chatResponse{
		Response:     res.Response,
		Sources:      res.Sources,
		TotalSources: len(res.Sources),
	})
}
