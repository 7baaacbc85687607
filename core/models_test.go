package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "same content produces same ID",
			content: "test content",
		},
		{
			name:    "empty string",
			content: "",
		},
		{
			name:    "cjk content",
			content: "猫喜欢睡觉。\n\n狗喜欢跑步。",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("content1")
	id2 := IDFromContent("content2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestScoredChunk_Score(t *testing.T) {
	doc := ScoredChunk{Content: "text", Metadata: map[string]string{MetaSource: "a.txt"}}

	if doc.Score != nil {
		t.Fatalf("new document should be unscored")
	}
	if got := doc.ScoreOr(-1); got != -1 {
		t.Errorf("ScoreOr() on unscored = %v, want -1", got)
	}

	scored := doc.WithScore(0)
	if scored.Score == nil || *scored.Score != 0 {
		t.Fatalf("WithScore(0) should produce a present zero score")
	}
	if doc.Score != nil {
		t.Errorf("WithScore must not modify the receiver")
	}
	if got := scored.Source(); got != "a.txt" {
		t.Errorf("Source() = %q, want a.txt", got)
	}
}
