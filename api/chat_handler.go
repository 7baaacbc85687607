package api

import (
	"cmp"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/ragbot/chat"
	"github.com/poiesic/ragbot/core"
	"github.com/poiesic/ragbot/storage"
)

// ChatHandler serves conversations and their history.
type ChatHandler struct {
	chat     *chat.Service
	sessions storage.SessionRepository
}

func NewChatHandler(service *chat.Service, sessions storage.SessionRepository) *ChatHandler {
	return &ChatHandler{chat: service, sessions: sessions}
}

type chatRequest struct {
	Message     string `json:"message"`
	SessionID   string `json:"session_id"`
	UseSearch   bool   `json:"use_search"`
	Stream      bool   `json:"stream"`
	Image       string `json:"image"` // Base64, optionally as a data URI
	ImageFormat string `json:"image_format"`
}

type titleRequest struct {
	Title string `json:"title"`
}

func (h *ChatHandler) bind(c *gin.Context) (chat.Request, bool) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortDetail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return chat.Request{}, false
	}
	if strings.TrimSpace(req.Message) == "" {
		abortDetail(c, http.StatusBadRequest, "message is required")
		return chat.Request{}, false
	}

	out := chat.Request{
		Message:     req.Message,
		SessionID:   req.SessionID,
		UseSearch:   req.UseSearch,
		ImageFormat: req.ImageFormat,
	}
	if req.Image != "" {
		image, format, err := decodeImage(req.Image)
		if err != nil {
			abortDetail(c, http.StatusBadRequest, err.Error())
			return chat.Request{}, false
		}
		out.Image = image
		out.ImageFormat = cmp.Or(out.ImageFormat, format, "png")
	}
	return out, true
}

// decodeImage accepts raw base64 or a data URI and returns the bytes and,
// for data URIs, the format named by the media type.
func decodeImage(s string) ([]byte, string, error) {
	var format string
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("invalid image data URI")
		}
		mediaType, _, _ := strings.Cut(meta, ";")
		format = strings.TrimPrefix(mediaType, "image/")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("invalid image encoding: %w", err)
	}
	return data, format, nil
}

func (h *ChatHandler) Chat(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	resp, err := h.chat.Chat(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Stream answers with server-sent events. Failures before the first event
// are reported as a normal JSON error.
func (h *ChatHandler) Stream(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	started := false
	err := h.chat.Stream(ctx, req, func(e chat.Event) error {
		if !started {
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			started = true
		}
		c.SSEvent(e.Name, e.Data)
		c.Writer.Flush()
		return ctx.Err()
	})
	if err != nil {
		if !started {
			handleError(c, err)
			return
		}
		_ = c.Error(err)
	}
}

func (h *ChatHandler) History(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, fmt.Errorf("session not found: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":    session.ID,
		"title":         core.DisplayTitle(session.Title),
		"created":       session.CreatedAt,
		"messages":      messageViews(session.Messages),
		"message_count": len(session.Messages),
	})
}

func (h *ChatHandler) DeleteHistory(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.DeleteSession(c.Request.Context(), id); err != nil {
		handleError(c, fmt.Errorf("session not found: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "session_id": id})
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	summaries, err := h.sessions.ListSessions(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	views := make([]sessionSummaryView, len(summaries))
	for i, s := range summaries {
		views[i] = summaryView(s)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views, "total": len(views)})
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	session, err := h.sessions.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, fmt.Errorf("session not found: %w", err))
		return
	}
	c.JSON(http.StatusOK, sessionView{
		ID:       session.ID,
		Title:    core.DisplayTitle(session.Title),
		Created:  session.CreatedAt,
		Messages: messageViews(session.Messages),
	})
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	title := c.Query("title")
	session, err := h.sessions.CreateSession(c.Request.Context(), title)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"title":      cmp.Or(title, core.DefaultTitlePrefix),
		"message":    "新会话已创建",
	})
}

func (h *ChatHandler) RenameSession(c *gin.Context) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortDetail(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		abortDetail(c, http.StatusBadRequest, "title is required")
		return
	}
	id := c.Param("id")
	if err := h.sessions.UpdateTitle(c.Request.Context(), id, req.Title); err != nil {
		handleError(c, fmt.Errorf("session not found: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true, "session_id": id, "title": req.Title})
}

func (h *ChatHandler) ClearSessions(c *gin.Context) {
	count, err := h.sessions.ClearSessions(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deleted": true,
		"count":   count,
		"message": fmt.Sprintf("已清除 %d 个会话", count),
	})
}
