package search

import (
	"testing"

	"github.com/poiesic/ragbot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(content string, score *float64) core.ScoredChunk {
	return core.ScoredChunk{Content: content, Metadata: map[string]string{}, Score: score}
}

func ptr(f float64) *float64 {
	return &f
}

func TestRerankTerms(t *testing.T) {
	cfg := DefaultKeywordConfig()

	assert.Equal(t, []string{"猫喜", "喜欢", "欢什"}, rerankTerms("猫喜欢什么", cfg))
	assert.Empty(t, rerankTerms("what is go", cfg))
	assert.Empty(t, rerankTerms("猫", cfg))
	// Windows starting with a Latin letter are not key terms.
	assert.Equal(t, []string{"语言"}, rerankTerms("Go语言", cfg))
}

func TestRerank(t *testing.T) {
	cfg := DefaultKeywordConfig()

	t.Run("boosts per matched term", func(t *testing.T) {
		docs := []core.ScoredChunk{
			doc("猫喜欢鱼", ptr(0.5)),
			doc("狗在跑", ptr(0.5)),
			doc("猫喜欢", nil),
		}

		got := Rerank("猫喜欢什么", docs, cfg)
		require.Len(t, got, 3)
		assert.InDelta(t, 0.6, *got[0].Score, 1e-9)
		assert.InDelta(t, 0.5, *got[1].Score, 1e-9)
		assert.Nil(t, got[2].Score)

		// Input is untouched.
		assert.InDelta(t, 0.5, *docs[0].Score, 1e-9)
	})

	t.Run("clamps at one", func(t *testing.T) {
		got := Rerank("猫喜欢什么", []core.ScoredChunk{doc("猫喜欢什么", ptr(0.98))}, cfg)
		assert.Equal(t, 1.0, *got[0].Score)
	})

	t.Run("zero score is boosted", func(t *testing.T) {
		got := Rerank("猫喜欢", []core.ScoredChunk{doc("猫喜", ptr(0))}, cfg)
		assert.InDelta(t, 0.05, *got[0].Score, 1e-9)
	})

	t.Run("single term match", func(t *testing.T) {
		custom := cfg
		custom.StopWords = nil
		got := Rerank("数据", []core.ScoredChunk{doc("大数据", ptr(0.1))}, custom)
		assert.InDelta(t, 0.15, *got[0].Score, 1e-9)
	})

	t.Run("empty input", func(t *testing.T) {
		got := Rerank("猫", nil, cfg)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestVerifyTerms(t *testing.T) {
	cfg := DefaultKeywordConfig()

	terms := verifyTerms("猫喜欢什么", cfg)
	assert.ElementsMatch(t, []string{"猫喜欢什么", "猫喜", "喜欢", "欢什"}, terms)

	terms = verifyTerms("Go的并发", cfg)
	assert.Contains(t, terms, "Go")
	assert.Contains(t, terms, "并发")
	assert.Contains(t, terms, "o的")

	assert.Empty(t, verifyTerms("猫", cfg))
}

func TestVerify(t *testing.T) {
	cfg := DefaultKeywordConfig()
	catDocs := []core.ScoredChunk{doc("猫喜欢睡觉。", ptr(0.6)), doc("猫是哺乳动物。", ptr(0.5))}

	tests := []struct {
		name  string
		query string
		docs  []core.ScoredChunk
		want  bool
	}{
		{"no documents", "猫喜欢什么", nil, false},
		{"related query", "猫喜欢什么", catDocs, true},
		{"unrelated query", "股票价格", catDocs, false},
		{"no terms fails open", "猫", catDocs, true},
		{"case sensitive", "SLEEP", []core.ScoredChunk{doc("sleep", nil)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verify(tt.query, tt.docs, cfg))
		})
	}
}

func TestVerify_Threshold(t *testing.T) {
	cfg := DefaultKeywordConfig()
	cfg.VerificationThreshold = 1
	docs := []core.ScoredChunk{doc("猫喜欢睡觉", nil)}

	// Only two of the four terms appear.
	assert.False(t, Verify("猫喜欢什么", docs, cfg))

	cfg.VerificationThreshold = 0.5
	assert.True(t, Verify("猫喜欢什么", docs, cfg))
}
