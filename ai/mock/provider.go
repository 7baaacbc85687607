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

package mock

import "github.com/poiesic/ragbot/ai"

// MockProvider is a test double for ai.AIProvider.
// It aggregates mock embedder, generator and vision instances.
type MockProvider struct {
	embedder  *MockEmbedder
	generator *MockGenerator
	vision    *MockVision
	closed    bool
}

// NewMockProvider creates a new mock provider with default mock services.
// Vision is disabled.
//
// Returns ai.AIProvider interface for consistency with production constructors.
// Use GetMockEmbedder()/GetMockGenerator() to access concrete types for test assertions.
func NewMockProvider() ai.AIProvider {
	return &MockProvider{
		embedder:  NewMockEmbedder(),
		generator: NewMockGenerator(""),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
// A nil vision disables image analysis.
func NewMockProviderWithServices(embedder *MockEmbedder, generator *MockGenerator, vision *MockVision) ai.AIProvider {
	return &MockProvider{
		embedder:  embedder,
		generator: generator,
		vision:    vision,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the mock generator.
func (p *MockProvider) Generator() ai.Generator {
	return p.generator
}

// Vision returns the mock describer, or nil when none was configured.
func (p *MockProvider) Vision() ai.ImageDescriber {
	if p.vision == nil {
		return nil
	}
	return p.vision
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (p *MockProvider) IsClosed() bool {
	return p.closed
}

// GetMockEmbedder returns the concrete mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockGenerator returns the concrete mock generator for test assertions.
func (p *MockProvider) GetMockGenerator() *MockGenerator {
	return p.generator
}
