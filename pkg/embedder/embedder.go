package embedder

import (
	"context"
	"fmt"
)

// Embedder is implemented by every embedding backend.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Source() Source
}

// New constructs the Embedder implementation for config, after validating
// it.
func New(ctx context.Context, config Config) (Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Source {
	case SourceRest:
		return newRestEmbedder(config)
	case SourceOpenAI, "":
		return newOpenAIEmbedder(config)
	case SourceFastEmbed:
		return newFastEmbedEmbedder(config)
	default:
		return newUserProvidedEmbedder(config)
	}
}

// UserProvidedEmbedder never calls out to generate vectors: callers are
// expected to supply vectors directly. It exists only to validate
// dimensions and report the configured Source metadata.
type UserProvidedEmbedder struct {
	dimensions int
}

func newUserProvidedEmbedder(config Config) (*UserProvidedEmbedder, error) {
	return &UserProvidedEmbedder{dimensions: *config.Dimensions}, nil
}

func (e *UserProvidedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedder: userProvided embedder cannot generate embeddings")
}

func (e *UserProvidedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedder: userProvided embedder cannot generate embeddings")
}

func (e *UserProvidedEmbedder) Dimensions() int { return e.dimensions }
func (e *UserProvidedEmbedder) Source() Source  { return SourceUserProvided }

// ValidateVector checks that a caller-supplied vector matches the
// configured dimensionality.
func (e *UserProvidedEmbedder) ValidateVector(vector []float32) error {
	if len(vector) != e.dimensions {
		return fmt.Errorf("embedder: expected %d dimensions, got %d", e.dimensions, len(vector))
	}
	return nil
}
