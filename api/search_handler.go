package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/ragbot/ai"
	"github.com/poiesic/ragbot/search"
)

// SearchHandler exposes retrieval directly, without generation.
type SearchHandler struct {
	retriever *search.Retriever
}

func NewSearchHandler(retriever *search.Retriever) *SearchHandler {
	return &SearchHandler{retriever: retriever}
}

type searchRequest struct {
	Query    string   `json:"query"`
	K        int      `json:"k"`
	MinScore *float64 `json:"min_score"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortDetail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.K > search.MaxK {
		abortDetail(c, http.StatusBadRequest, fmt.Sprintf("k must be at most %d", search.MaxK))
		return
	}
	minScore := -1.0
	if req.MinScore != nil {
		minScore = *req.MinScore
	}

	docs, err := h.retriever.Retrieve(c.Request.Context(), req.Query, req.K, minScore)
	if err != nil {
		handleError(c, err)
		return
	}
	views := make([]searchDocView, len(docs))
	for i, d := range docs {
		views[i] = searchDocView{ChunkID: d.ChunkID, Content: d.Content, Metadata: d.Metadata, Score: d.Score}
	}
	c.JSON(http.StatusOK, gin.H{
		"query":    req.Query,
		"docs":     views,
		"verified": h.retriever.Verify(req.Query, docs),
		"context":  search.AssembleContext(docs),
	})
}

// imageFormats are the image extensions accepted for analysis.
var imageFormats = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tiff"}

// maxImageSize bounds uploaded images.
const maxImageSize = 20 << 20

// VisionHandler describes uploaded images.
type VisionHandler struct {
	vision ai.ImageDescriber
}

func NewVisionHandler(vision ai.ImageDescriber) *VisionHandler {
	return &VisionHandler{vision: vision}
}

func (h *VisionHandler) Analyze(c *gin.Context) {
	if h.vision == nil {
		handleError(c, fmt.Errorf("%w: set GLM_API_KEY to enable image analysis", ai.ErrVisionUnavailable))
		return
	}
	file, err := c.FormFile("image")
	if err != nil {
		abortDetail(c, http.StatusBadRequest, "image is required")
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !slices.Contains(imageFormats, ext) {
		abortDetail(c, http.StatusBadRequest,
			"Unsupported image format. Allowed: "+strings.Join(imageFormats, ", "))
		return
	}
	if file.Size > maxImageSize {
		abortDetail(c, http.StatusBadRequest, fmt.Sprintf("image exceeds %dMB", maxImageSize>>20))
		return
	}

	opened, err := file.Open()
	if err != nil {
		abortDetail(c, http.StatusBadRequest, "failed to open image")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		abortDetail(c, http.StatusBadRequest, "failed to read image")
		return
	}

	format := strings.TrimPrefix(ext, ".")
	question := c.PostForm("question")
	description, err := h.vision.DescribeImage(c.Request.Context(), data, format, question)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"description": description,
		"filename":    filepath.Base(file.Filename),
		"format":      format,
		"question":    question,
	})
}
