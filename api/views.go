package api

import (
	"time"

	"github.com/poiesic/ragbot/core"
)

type messageView struct {
	Role        core.Role `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	HasImage    bool      `json:"has_image"`
	ImageData   string    `json:"image_data,omitempty"`
	ImageFormat string    `json:"image_format,omitempty"`
}

type sessionView struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Created  time.Time     `json:"created"`
	Messages []messageView `json:"messages"`
}

type sessionSummaryView struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Created      time.Time  `json:"created"`
	MessageCount int        `json:"message_count"`
	LastActivity *time.Time `json:"last_activity"`
	LastMessage  string     `json:"last_message"`
}

type documentView struct {
	DocumentID string    `json:"document_id"`
	Source     string    `json:"source"`
	ChunkCount int       `json:"chunk_count"`
	FileType   string    `json:"file_type"`
	CreatedAt  time.Time `json:"created_at"`
}

type uploadView struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
}

type searchDocView struct {
	ChunkID  string            `json:"chunk_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    *float64          `json:"score"`
}

func messageViews(msgs []core.Message) []messageView {
	views := make([]messageView, len(msgs))
	for i, m := range msgs {
		views[i] = messageView{
			Role:        m.Role,
			Content:     m.Content,
			Timestamp:   m.Timestamp,
			HasImage:    m.HasImage,
			ImageData:   m.ImageData,
			ImageFormat: m.ImageFormat,
		}
	}
	return views
}

func summaryView(s core.SessionSummary) sessionSummaryView {
	v := sessionSummaryView{
		ID:           s.ID,
		Title:        s.Title,
		Created:      s.CreatedAt,
		MessageCount: s.MessageCount,
		LastMessage:  s.LastMessage,
	}
	if !s.LastActivity.IsZero() {
		last := s.LastActivity
		v.LastActivity = &last
	}
	return v
}
