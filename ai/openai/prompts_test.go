package openai

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tmc/langchaingo/llms"
)

func TestFormatUserContent(t *testing.T) {
	assert.Equal(t, "你好", formatUserContent("你好", ""))
	assert.Equal(t,
		"【参考文档】\n猫是哺乳动物\n\n【用户问题】\n猫是什么",
		formatUserContent("猫是什么", "猫是哺乳动物"))
}

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages("system", "question", "")

	assert.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, llms.TextContent{Text: "question"}, msgs[1].Parts[0])
}

func TestEnhanceVisionQuestion(t *testing.T) {
	tests := []struct {
		name     string
		question string
		suffix   string
	}{
		{"code question", "这段代码是做什么的", codeSuffix},
		{"english code question", "Explain this CODE", codeSuffix},
		{"image question", "这张图片里有什么", imageSuffix},
		{"photo question", "describe the photo", imageSuffix},
		{"generic question", "这是什么", genericSuffix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.question+tt.suffix, EnhanceVisionQuestion(tt.question))
		})
	}

	t.Run("empty question uses default", func(t *testing.T) {
		got := EnhanceVisionQuestion("  ")
		assert.True(t, strings.HasPrefix(got, DefaultVisionQuestion))
		assert.True(t, strings.HasSuffix(got, imageSuffix))
	})
}

func TestCleanResponse(t *testing.T) {
	assert.Equal(t, "答案", cleanResponse("  答案<|im_end|>\n"))
	assert.Equal(t, "ab", stripStopTokens("a<|im_start|>b"))
}

func TestImageMIMEType(t *testing.T) {
	assert.Equal(t, "image/png", imageMIMEType("PNG"))
	assert.Equal(t, "image/jpeg", imageMIMEType(".jpg"))
	assert.Equal(t, "image/jpeg", imageMIMEType(""))
	assert.Equal(t, "image/webp", imageMIMEType("webp"))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  string
		want bool
	}{
		{"API returned unexpected status code: 429: rate limited", true},
		{"API returned unexpected status code: 503", true},
		{"API returned unexpected status code: 401: invalid key", false},
		{"API returned unexpected status code: 400", false},
		{"dial tcp: connection refused", true},
	}

	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(errors.New(tt.err)))
		})
	}
}
