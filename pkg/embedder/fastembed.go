package embedder

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
)

// fastEmbedModels is the fixed lookup table of supported local model names
// (matched case-insensitively) to their declared output dimensionality.
var fastEmbedModels = map[string]int{
	"bge-small-en-v1.5": 384,
	"bge-base-en-v1.5":  768,
	"bge-large-en-v1.5": 1024,
	"all-minilm-l6-v2":  384,
}

const defaultFastEmbedModel = "bge-small-en-v1.5"

// FastEmbedEmbedder is a local, in-process embedder standing in for ONNX
// inference: it is deterministic and offline, generating a vector from a
// hash of the input text rather than running a real model.
type FastEmbedEmbedder struct {
	model      string
	dimensions int
}

func newFastEmbedEmbedder(config Config) (*FastEmbedEmbedder, error) {
	name := defaultFastEmbedModel
	if config.Model != nil {
		name = *config.Model
	}
	dims, ok := fastEmbedModels[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("embedder: unknown fastEmbed model %q", name)
	}
	if config.Dimensions != nil && *config.Dimensions != dims {
		return nil, fmt.Errorf("embedder: fastEmbed model %q produces %d dimensions, config requested %d",
			name, dims, *config.Dimensions)
	}
	return &FastEmbedEmbedder{model: name, dimensions: dims}, nil
}

func (e *FastEmbedEmbedder) Dimensions() int { return e.dimensions }
func (e *FastEmbedEmbedder) Source() Source  { return SourceFastEmbed }

func (e *FastEmbedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return deterministicVector(text, e.dimensions), nil
}

func (e *FastEmbedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t, e.dimensions)
	}
	return out, nil
}

// deterministicVector expands a SHA-256 digest of text into a vector of the
// requested dimension, cycling the digest bytes as needed.
func deterministicVector(text string, dimensions int) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dimensions)
	for i := range vec {
		b := sum[i%len(sum)]
		vec[i] = (float32(b)/255.0)*2 - 1
	}
	return vec
}
