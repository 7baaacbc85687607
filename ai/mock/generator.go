package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/ragbot/ai"
)

// GenerateCall records the arguments of one generation request.
type GenerateCall struct {
	Question  string
	Reference string
	Streamed  bool
}

// MockGenerator is a test double for ai.Generator. By default it answers
// with Response, streamed as Tokens when those are set.
type MockGenerator struct {
	// Response is the full answer. Defaults to "mock answer".
	Response string

	// Tokens are emitted in order by Stream. When empty, Response is split
	// on spaces.
	Tokens []string

	// Err fails every request when set.
	Err error

	// GenerateFunc overrides the default behavior of Generate and Stream.
	GenerateFunc func(ctx context.Context, question, reference string) (string, error)

	mu    sync.Mutex
	calls []GenerateCall
}

// NewMockGenerator creates a generator that always answers response.
func NewMockGenerator(response string) *MockGenerator {
	return &MockGenerator{Response: response}
}

// Model returns a fixed model name.
func (m *MockGenerator) Model() string {
	return "mock-model"
}

// Generate returns the scripted answer.
func (m *MockGenerator) Generate(ctx context.Context, question, reference string) (string, error) {
	m.record(GenerateCall{Question: question, Reference: reference})
	return m.answer(ctx, question, reference)
}

// Stream emits the scripted tokens through onToken.
func (m *MockGenerator) Stream(ctx context.Context, question, reference string, onToken ai.TokenFunc) (string, error) {
	m.record(GenerateCall{Question: question, Reference: reference, Streamed: true})

	tokens := m.Tokens
	if len(tokens) == 0 || m.GenerateFunc != nil {
		full, err := m.answer(ctx, question, reference)
		if err != nil {
			return "", err
		}
		tokens = splitKeep(full)
	} else if m.Err != nil {
		return "", m.Err
	}

	var full strings.Builder
	for _, tok := range tokens {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		full.WriteString(tok)
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return "", err
			}
		}
	}
	return full.String(), nil
}

// Calls returns a copy of every recorded request.
func (m *MockGenerator) Calls() []GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GenerateCall(nil), m.calls...)
}

// LastCall returns the most recent request.
func (m *MockGenerator) LastCall() (GenerateCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return GenerateCall{}, false
	}
	return m.calls[len(m.calls)-1], true
}

func (m *MockGenerator) record(call GenerateCall) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *MockGenerator) answer(ctx context.Context, question, reference string) (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, question, reference)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.Response == "" {
		return "mock answer", nil
	}
	return m.Response, nil
}

// splitKeep splits s after every space so the pieces rejoin to s.
func splitKeep(s string) []string {
	return strings.SplitAfter(s, " ")
}
