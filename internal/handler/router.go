package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mrag/internal/metrics"
)

type RouterDeps struct {
	Documents *DocumentHandler
	Search    *SearchHandler
	System    *SystemHandler
	ChatLimit gin.HandlerFunc
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.System.Health)
	api.POST("/initialize", deps.System.Initialize)
	api.GET("/stats", deps.System.Stats)
	api.GET("/metrics", metrics.Handler())

	api.POST("/documents/text", deps.Documents.AddText)
	api.POST("/documents/pdf", deps.Documents.AddPDF)
	api.GET("/documents", deps.Documents.List)
	api.GET("/documents/:id", deps.Documents.Get)
	api.DELETE("/documents/:id", deps.Documents.Delete)

	api.POST("/search", deps.Search.Search)
	chat := []gin.HandlerFunc{deps.Search.Chat}
	if deps.ChatLimit != nil {
		chat = append([]gin.HandlerFunc{deps.ChatLimit}, chat...)
	}
	api.POST("/chat", chat...)
}
