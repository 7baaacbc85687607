package ai

// DefaultSystemPrompt is the hybrid prompt: answer from reference documents
// when they are relevant, otherwise answer from general knowledge.
const DefaultSystemPrompt = `你是一个名为 AssistantBot 的智能 AI 助手。

【回答策略 - 混合模式】
1. 如果【参考文档】中包含相关信息，请优先基于文档内容回答
2. 如果【参考文档】为空或没有相关信息，请用自己的知识回答问题
3. 对于文档中的事实信息，可以适当引用来源
4. 保持回答准确、有用、友好

【回答格式】
- 有文档时：基于文档回答，可说明"根据文档..."
- 无文档时：正常回答，作为智能助手提供帮助
- 保持简洁但完整的回答`

// SystemPromptOrDefault returns the configured system prompt, falling back
// to DefaultSystemPrompt.
func (c *Config) SystemPromptOrDefault() string {
	if c.SystemPrompt == "" {
		return DefaultSystemPrompt
	}
	return c.SystemPrompt
}
