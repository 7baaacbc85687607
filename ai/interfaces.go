package ai

import "context"

// Embedder generates vector embeddings for text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// TokenFunc receives generated tokens as they arrive. Returning an error
// stops generation.
type TokenFunc func(token string) error

// Generator produces answers from a chat model.
type Generator interface {
	// Generate answers question, optionally grounded in reference text
	// assembled from retrieved documents. An empty reference means plain
	// conversation.
	Generate(ctx context.Context, question, reference string) (string, error)

	// Stream is Generate with incremental delivery. It returns the full
	// answer once the model is done.
	Stream(ctx context.Context, question, reference string, onToken TokenFunc) (string, error)

	// Model names the underlying chat model.
	Model() string
}

// ImageDescriber turns an image into a text description a chat model can use.
type ImageDescriber interface {
	// DescribeImage analyzes image (raw bytes in the given format, e.g. "png")
	// guided by question. An empty question asks for a general description.
	DescribeImage(ctx context.Context, image []byte, format, question string) (string, error)
}

// AIProvider aggregates the AI services used by ragbot.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Generator returns the chat generation service.
	Generator() Generator

	// Vision returns the image description service, or nil when vision
	// is not configured.
	Vision() ImageDescriber

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
