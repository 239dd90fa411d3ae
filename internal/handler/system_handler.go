package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mrag/internal/pkg/errcode"
	appErr "github.com/xxxsen/mrag/internal/pkg/errors"
	"github.com/xxxsen/mrag/internal/pkg/response"
	"github.com/xxxsen/mrag/internal/service"
	"github.com/xxxsen/mrag/internal/vectorstore"
)

type SystemHandler struct {
	loader *service.CorpusLoader
	store  vectorstore.Store
	now    func() time.Time
}

func NewSystemHandler(loader *service.CorpusLoader, store vectorstore.Store) *SystemHandler {
	return &SystemHandler{loader: loader, store: store, now: time.Now}
}

func (h *SystemHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{
		"status":    "ok",
		"message":   "rag service is running",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *SystemHandler) Initialize(c *gin.Context) {
	res, err := h.loader.Bootstrap(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	message := "knowledge base loaded"
	switch {
	case res.Existing:
		message = "existing data detected, knowledge base not reloaded"
	case res.Skipped:
		message = "vector store probe failed, loading skipped"
	}
	response.Success(c, gin.H{
		"success": true,
		"message": message,
		"result":  res,
	})
}

func (h *SystemHandler) Stats(c *gin.Context) {
	sp, ok := h.store.(vectorstore.StatsProvider)
	if !ok {
		response.Error(c, errcode.ErrStoreOperation, "vector store does not report stats")
		return
	}
	st, err := sp.Stats(c.Request.Context())
	if err != nil {
		handleError(c, appErr.Wrap(appErr.ErrStoreOperation, "stats", err))
		return
	}
	response.Success(c, gin.H{"store": h.store.Name(), "count": st.Count})
}
