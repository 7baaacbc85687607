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

package openai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/ragbot/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client       llms.Model
	model        string
	systemPrompt string
	temperature  float64
	maxTokens    int
	topP         float64
	logger       *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// newGenerator is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(config.Token()),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client:       client,
		model:        config.ChatModel,
		systemPrompt: config.SystemPromptOrDefault(),
		temperature:  config.Temperature,
		maxTokens:    config.MaxTokens,
		topP:         config.TopP,
		logger:       slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a new chat generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Model returns the chat model identifier.
func (g *Generator) Model() string {
	return g.model
}

// Generate produces a complete answer in one call.
func (g *Generator) Generate(ctx context.Context, question, reference string) (string, error) {
	g.logger.Debug("generating answer", "question_length", len(question), "has_reference", reference != "")

	response, err := g.client.GenerateContent(ctx, buildMessages(g.systemPrompt, question, reference), g.callOptions()...)
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", ai.ErrEmptyResponse
	}

	return cleanResponse(response.Choices[0].Content), nil
}

// Stream produces an answer token by token. onToken sees every non-empty
// token in order; the returned string is the whole answer.
func (g *Generator) Stream(ctx context.Context, question, reference string, onToken ai.TokenFunc) (string, error) {
	g.logger.Debug("streaming answer", "question_length", len(question), "has_reference", reference != "")

	var full strings.Builder
	opts := append(g.callOptions(), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		token := stripStopTokens(string(chunk))
		if token == "" {
			return nil
		}
		full.WriteString(token)
		if onToken == nil {
			return nil
		}
		return onToken(token)
	}))

	response, err := g.client.GenerateContent(ctx, buildMessages(g.systemPrompt, question, reference), opts...)
	if err != nil {
		g.logger.Error("failed to stream content", "err", err)
		return "", err
	}

	// Servers that ignore the stream flag answer in one piece.
	if full.Len() == 0 && len(response.Choices) > 0 {
		answer := cleanResponse(response.Choices[0].Content)
		if answer != "" && onToken != nil {
			if err := onToken(answer); err != nil {
				return "", err
			}
		}
		return answer, nil
	}
	return strings.TrimSpace(full.String()), nil
}

func (g *Generator) callOptions() []llms.CallOption {
	return []llms.CallOption{
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.maxTokens),
		llms.WithTopP(g.topP),
	}
}
