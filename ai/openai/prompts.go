package openai

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

const (
	// DefaultVisionQuestion is asked when an image arrives without a question.
	DefaultVisionQuestion = "请详细描述这张图片的内容，包括主要物体、场景、颜色、布局等细节"

	codeSuffix    = "\n\n如果是代码，请识别编程语言、解释代码逻辑、并分析代码功能。"
	imageSuffix   = "\n\n请详细描述图片中的所有内容，包括：文字、物体、场景、颜色、布局等细节。"
	genericSuffix = "\n\n请详细分析这张图片的内容。"

	visionResultHeader = "【图片内容分析】\n"
)

// stopTokens leak through some OpenAI-compatible servers running Qwen models.
var stopTokens = []string{"<|im_end|>", "<|im_start|>", "<|endoftext|>"}

// formatUserContent frames the question with reference documents when any
// were retrieved.
func formatUserContent(question, reference string) string {
	if reference == "" {
		return question
	}
	return fmt.Sprintf("【参考文档】\n%s\n\n【用户问题】\n%s", reference, question)
}

// buildMessages returns the system and user turns for a chat completion.
func buildMessages(systemPrompt, question, reference string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, formatUserContent(question, reference)),
	}
}

// EnhanceVisionQuestion appends analysis instructions matched to what the
// user asked about.
func EnhanceVisionQuestion(question string) string {
	if strings.TrimSpace(question) == "" {
		question = DefaultVisionQuestion
	}
	lower := strings.ToLower(question)
	switch {
	case containsAny(lower, "代码", "code", "coding"):
		return question + codeSuffix
	case containsAny(lower, "图片", "图像", "photo"):
		return question + imageSuffix
	default:
		return question + genericSuffix
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
