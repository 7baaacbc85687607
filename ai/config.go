// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"errors"
	"strings"
)

const (
	defaultHost       = "http://localhost:11434/v1"
	defaultVisionHost = "https://open.bigmodel.cn/api/paas/v4"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// ChatHost is the base URL for the chat completion API.
	ChatHost string

	// ChatModel is the model identifier used to answer questions.
	// Example: "qwen2.5:7b", "gpt-4o-mini"
	ChatModel string

	// APIKey authenticates against EmbeddingHost and ChatHost.
	// Local servers accept any value; "none" is used when empty.
	APIKey string

	// VisionHost is the base URL of the OpenAI-compatible vision API.
	VisionHost string

	// VisionModel is the multimodal model used to describe images.
	VisionModel string

	// VisionAPIKey enables image analysis. Vision is disabled when empty.
	VisionAPIKey string

	// Temperature, MaxTokens and TopP tune chat generation.
	Temperature float64
	MaxTokens   int
	TopP        float64

	// SystemPrompt overrides the built-in system prompt when set.
	SystemPrompt string
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithChatHost sets the chat service host URL.
func WithChatHost(host string) ConfigOption {
	return func(c *Config) {
		c.ChatHost = host
	}
}

// WithHost sets both embedding and chat hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ChatHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithChatModel sets the chat model identifier.
func WithChatModel(model string) ConfigOption {
	return func(c *Config) {
		c.ChatModel = model
	}
}

// WithAPIKey sets the key used for the embedding and chat services.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithVision enables image analysis against an OpenAI-compatible
// multimodal endpoint. Empty host or model keep the defaults.
func WithVision(host, model, apiKey string) ConfigOption {
	return func(c *Config) {
		if host != "" {
			c.VisionHost = host
		}
		if model != "" {
			c.VisionModel = model
		}
		c.VisionAPIKey = apiKey
	}
}

// WithGeneration sets the sampling parameters for chat generation.
func WithGeneration(temperature float64, maxTokens int, topP float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = temperature
		c.MaxTokens = maxTokens
		c.TopP = topP
	}
}

// WithSystemPrompt replaces the built-in system prompt.
func WithSystemPrompt(prompt string) ConfigOption {
	return func(c *Config) {
		c.SystemPrompt = prompt
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, both embedding and chat use the same host and vision is disabled.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:  defaultHost,
		EmbeddingModel: "embeddinggemma",
		ChatHost:       defaultHost,
		ChatModel:      "qwen2.5:7b",
		VisionHost:     defaultVisionHost,
		VisionModel:    "glm-4v-flash",
		Temperature:    0.7,
		MaxTokens:      2048,
		TopP:           0.95,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithChatModel("qwen2.5:7b"),
//	    WithVision("", "", os.Getenv("GLM_API_KEY")),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// VisionEnabled reports whether image analysis is configured.
func (c *Config) VisionEnabled() bool {
	return c.VisionAPIKey != ""
}

// Token returns the API key for the embedding and chat services.
func (c *Config) Token() string {
	if c.APIKey == "" {
		return "none"
	}
	return c.APIKey
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to the embedding and chat hosts if missing, which is
// required by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
// The vision host is left alone since hosted APIs version their paths differently.
func (c *Config) Normalize() {
	c.EmbeddingHost = withV1(c.EmbeddingHost)
	c.ChatHost = withV1(c.ChatHost)
	c.VisionHost = strings.TrimSuffix(c.VisionHost, "/")
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.ChatHost == "" {
		return errors.New("ai config: ChatHost is required")
	}
	if c.ChatModel == "" {
		return errors.New("ai config: ChatModel is required")
	}
	if c.VisionEnabled() && (c.VisionHost == "" || c.VisionModel == "") {
		return errors.New("ai config: VisionHost and VisionModel are required when vision is enabled")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.MaxTokens < 1 {
		return errors.New("ai config: MaxTokens must be positive")
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return errors.New("ai config: TopP must be in (0, 1]")
	}
	return nil
}
