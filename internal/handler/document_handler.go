package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mrag/internal/extract"
	"github.com/xxxsen/mrag/internal/model"
	"github.com/xxxsen/mrag/internal/pkg/errcode"
	"github.com/xxxsen/mrag/internal/pkg/response"
	"github.com/xxxsen/mrag/internal/service"
)

type DocumentHandler struct {
	ingest         *service.IngestService
	uploadMaxBytes int64
}

func NewDocumentHandler(ingest *service.IngestService, uploadMaxBytes int64) *DocumentHandler {
	if uploadMaxBytes <= 0 {
		uploadMaxBytes = defaultUploadMaxBytes
	}
	return &DocumentHandler{ingest: ingest, uploadMaxBytes: uploadMaxBytes}
}

type addTextRequest struct {
	Content  string `json:"content" binding:"required,min=10"`
	Title    string `json:"title"`
	Source   string `json:"source"`
	Category string `json:"category"`
}

type addDocumentResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId"`
	Chunks     int    `json:"chunks"`
	Message    string `json:"message"`
}

func (h *DocumentHandler) AddText(c *gin.Context) {
	var req addTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "content is required and must have at least 10 characters")
		return
	}
	res, err := h.ingest.AddDocument(c.Request.Context(), service.AddDocumentInput{
		Content:  req.Content,
		Title:    req.Title,
		Source:   req.Source,
		Category: req.Category,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, addDocumentResponse{
		Success:    true,
		DocumentID: res.DocumentID,
		Chunks:     res.Chunks,
		Message:    "document added",
	})
}

func (h *DocumentHandler) AddPDF(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploadMaxBytes+1024*1024)
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if file.Size > h.uploadMaxBytes {
		response.Error(c, errcode.ErrInvalidFile, "file exceeds "+formatUploadLimit(h.uploadMaxBytes))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(io.LimitReader(opened, h.uploadMaxBytes+1))
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to read file")
		return
	}
	if int64(len(data)) > h.uploadMaxBytes {
		response.Error(c, errcode.ErrInvalidFile, "file exceeds "+formatUploadLimit(h.uploadMaxBytes))
		return
	}
	if !extract.IsPDF(data) {
		response.Error(c, errcode.ErrInvalidFile, "only pdf files are accepted")
		return
	}
	text, err := extract.PDFText(data)
	if err != nil {
		handleError(c, err)
		return
	}
	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = file.Filename
	}
	res, err := h.ingest.AddDocument(c.Request.Context(), service.AddDocumentInput{
		Content:  text,
		Title:    title,
		Source:   model.SourcePDF,
		Category: c.PostForm("category"),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, addDocumentResponse{
		Success:    true,
		DocumentID: res.DocumentID,
		Chunks:     res.Chunks,
		Message:    "pdf document added",
	})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.ingest.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

// List filters by the title, source and category query parameters.
func (h *DocumentHandler) List(c *gin.Context) {
	filter := map[string]string{}
	for _, key := range []string{"title", "source", "category"} {
		if value := strings.TrimSpace(c.Query(key)); value != "" {
			filter[key] = value
		}
	}
	docs, err := h.ingest.ListDocuments(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}
	if docs == nil {
		docs = []*model.Document{}
	}
	response.Success(c, gin.H{"documents": docs, "total": len(docs)})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.ingest.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"success": true})
}
