package search

import (
	"fmt"
	"strings"

	"github.com/poiesic/ragbot/core"
)

// AssembleContext renders retrieved documents as numbered reference blocks
// for the chat prompt. Empty input gives an empty string.
func AssembleContext(docs []core.ScoredChunk) string {
	if len(docs) == 0 {
		return ""
	}
	parts := make([]string, len(docs))
	for i, doc := range docs {
		source := DisplaySource(doc.Source())
		score := ""
		if doc.Score != nil {
			score = fmt.Sprintf(" (相关度: %.1f%%)", *doc.Score*100)
		}
		parts[i] = fmt.Sprintf("【参考文档%d 来源: %s%s】\n%s", i+1, source, score, doc.Content)
	}
	return strings.Join(parts, "\n\n")
}

// DisplaySource strips the file:// scheme from a source label, defaulting
// to "Unknown".
func DisplaySource(source string) string {
	if source == "" {
		return "Unknown"
	}
	return strings.ReplaceAll(source, "file://", "")
}

// AverageScore is the mean score of the documents, counting unscored
// documents as zero.
func AverageScore(docs []core.ScoredChunk) float64 {
	if len(docs) == 0 {
		return 0
	}
	var sum float64
	for _, doc := range docs {
		sum += doc.ScoreOr(0)
	}
	return sum / float64(len(docs))
}
