package core

import (
	"fmt"
	"strings"
)

const (
	// DefaultTitlePrefix starts every generated session title. Sessions whose
	// title still carries it are renamed after their first user message.
	DefaultTitlePrefix = "新对话"

	// UntitledSession is shown for sessions that never received a title.
	UntitledSession = "未命名对话"

	titleRunes   = 30
	previewRunes = 50
)

// DefaultTitle returns the generated title for the n-th session.
func DefaultTitle(n int) string {
	return fmt.Sprintf("%s %d", DefaultTitlePrefix, n)
}

// IsDefaultTitle reports whether a title may be replaced by an automatic one.
func IsDefaultTitle(title string) bool {
	return title == "" || strings.HasPrefix(title, DefaultTitlePrefix)
}

// TitleFromMessage derives a session title from the first user message.
func TitleFromMessage(content string) string {
	return Truncate(content, titleRunes)
}

// PreviewMessage shortens a message for session listings.
func PreviewMessage(content string) string {
	return Truncate(content, previewRunes)
}

// DisplayTitle returns the title to show for a session.
func DisplayTitle(title string) string {
	if title == "" {
		return UntitledSession
	}
	return title
}

// Truncate keeps the first n runes of s and appends "..." when anything was cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// Summarize builds the listing view of a session.
// The preview is the last user message, falling back to the first message.
func Summarize(s *Session) SessionSummary {
	summary := SessionSummary{
		ID:           s.ID,
		Title:        DisplayTitle(s.Title),
		CreatedAt:    s.CreatedAt,
		MessageCount: len(s.Messages),
	}
	if len(s.Messages) == 0 {
		return summary
	}
	summary.LastActivity = s.Messages[len(s.Messages)-1].Timestamp
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			summary.LastMessage = PreviewMessage(s.Messages[i].Content)
			break
		}
	}
	if summary.LastMessage == "" {
		summary.LastMessage = PreviewMessage(s.Messages[0].Content)
	}
	return summary
}
