package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrag/internal/ai"
	"github.com/xxxsen/mrag/internal/pkg/errcode"
	appErr "github.com/xxxsen/mrag/internal/pkg/errors"
	"github.com/xxxsen/mrag/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("stage", appErr.StageOf(err)),
		zap.Error(err),
	)
	switch {
	case appErr.IsInvalid(err):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case appErr.IsNotFound(err):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, ai.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai provider unavailable")
	case errors.Is(err, appErr.ErrEmbedding):
		response.Error(c, errcode.ErrEmbedding, "embedding failed")
	case errors.Is(err, appErr.ErrGeneration):
		response.Error(c, errcode.ErrGeneration, "response generation failed")
	case errors.Is(err, appErr.ErrStoreInit):
		response.Error(c, errcode.ErrStoreInit, "vector store initialization failed")
	case errors.Is(err, appErr.ErrStoreOperation):
		response.Error(c, errcode.ErrStoreOperation, "vector store operation failed")
	case errors.Is(err, appErr.ErrCatalog):
		response.Error(c, errcode.ErrCatalog, "document catalog failed")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}

func badRequest(c *gin.Context, msg string) {
	response.Error(c, errcode.ErrInvalid, msg)
}
