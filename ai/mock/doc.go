// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Generator,
// ai.ImageDescriber and ai.AIProvider for use in unit tests. The mocks allow
// tests to run without external AI service dependencies and enable
// controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vector, err := mockProvider.Embedder().EmbedText(ctx, "猫喜欢睡觉")
//
//	// Custom behavior injection
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, errors.New("service down")
//	}
//
//	// Scripted streaming
//	gen := mock.NewMockGenerator("")
//	gen.Tokens = []string{"你", "好"}
//
// # Default Behavior
//
//   - MockEmbedder: hashed character features, so similar texts embed close together
//   - MockGenerator: answers "mock answer" and records every request
//   - MockVision: returns a fixed description
//   - MockProvider: aggregates the above, with vision disabled
package mock
