package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/ragbot/extract"
	"github.com/poiesic/ragbot/ingestion"
	"github.com/poiesic/ragbot/storage"
)

// maxUploadSize bounds uploaded documents.
const maxUploadSize = 50 << 20

// DocumentHandler manages the indexed documents.
type DocumentHandler struct {
	chunks   storage.ChunkRepository
	pipeline *ingestion.Pipeline
}

func NewDocumentHandler(chunks storage.ChunkRepository, pipeline *ingestion.Pipeline) *DocumentHandler {
	return &DocumentHandler{chunks: chunks, pipeline: pipeline}
}

type urlRequest struct {
	URLs []string `json:"urls"`
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		abortDetail(c, http.StatusBadRequest, "file is required")
		return
	}
	name := filepath.Base(file.Filename)
	if !extract.IsSupported(name) {
		abortDetail(c, http.StatusBadRequest,
			"Unsupported file type. Allowed: "+strings.Join(extract.SupportedExtensions, ", "))
		return
	}
	if file.Size > maxUploadSize {
		abortDetail(c, http.StatusBadRequest, fmt.Sprintf("file exceeds %dMB", maxUploadSize>>20))
		return
	}

	opened, err := file.Open()
	if err != nil {
		abortDetail(c, http.StatusBadRequest, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		abortDetail(c, http.StatusBadRequest, "failed to read file")
		return
	}

	res, err := h.pipeline.IngestUpload(c.Request.Context(), name, data)
	if err != nil {
		handleError(c, fmt.Errorf("processing failed: %w", err))
		return
	}
	c.JSON(http.StatusOK, uploadView{
		DocumentID: res.DocumentID,
		Filename:   name,
		Status:     "ready",
		ChunkCount: res.ChunkCount,
	})
}

func (h *DocumentHandler) IngestURLs(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortDetail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if len(req.URLs) == 0 {
		abortDetail(c, http.StatusBadRequest, "urls is required")
		return
	}

	results := h.pipeline.IngestURLs(c.Request.Context(), req.URLs)
	views := make([]uploadView, len(results))
	total := 0
	for i, r := range results {
		if r.Err != nil {
			views[i] = uploadView{Filename: r.URL, Status: "failed: " + r.Err.Error()}
			continue
		}
		views[i] = uploadView{
			DocumentID: r.Result.DocumentID,
			Filename:   r.URL,
			Status:     "ready",
			ChunkCount: r.Result.ChunkCount,
		}
		total += r.Result.ChunkCount
	}
	c.JSON(http.StatusOK, gin.H{"documents": views, "total_chunks": total})
}

func (h *DocumentHandler) Stats(c *gin.Context) {
	stats, err := h.chunks.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_documents": stats.Count, "collection_name": stats.Name})
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.chunks.ListDocuments(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	views := make([]documentView, len(docs))
	total := 0
	for i, d := range docs {
		views[i] = documentView{
			DocumentID: d.DocumentID,
			Source:     d.Source,
			ChunkCount: d.ChunkCount,
			FileType:   d.FileType,
			CreatedAt:  d.CreatedAt,
		}
		total += d.ChunkCount
	}
	c.JSON(http.StatusOK, gin.H{"documents": views, "total_count": len(views), "total_chunks": total})
}

func (h *DocumentHandler) Clear(c *gin.Context) {
	count, err := h.chunks.Clear(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "chunks_removed": count, "message": "All documents cleared"})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	removed, err := h.chunks.DeleteDocument(c.Request.Context(), id)
	if err != nil {
		handleError(c, fmt.Errorf("document %s not found: %w", id, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "document_id": id, "chunks_removed": removed})
}
