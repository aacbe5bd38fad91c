package embedder

import (
	"context"
	"testing"
)

func TestNewDispatchesBySource(t *testing.T) {
	ctx := context.Background()
	dims := 3

	e, err := New(ctx, Config{Source: SourceUserProvided, Dimensions: &dims})
	if err != nil {
		t.Fatalf("userProvided: %v", err)
	}
	if e.Source() != SourceUserProvided || e.Dimensions() != 3 {
		t.Fatalf("got source=%v dims=%d", e.Source(), e.Dimensions())
	}

	apiKey := "sk-test"
	e, err = New(ctx, Config{Source: SourceOpenAI, APIKey: &apiKey})
	if err != nil {
		t.Fatalf("openAi: %v", err)
	}
	if e.Source() != SourceOpenAI {
		t.Fatalf("got source=%v", e.Source())
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{Source: SourceOpenAI}); err == nil {
		t.Fatal("expected validation error for a missing apiKey")
	}
}

func TestUserProvidedEmbedderAlwaysFails(t *testing.T) {
	dims := 2
	e, err := New(context.Background(), Config{Source: SourceUserProvided, Dimensions: &dims})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.EmbedQuery(context.Background(), "hello"); err == nil {
		t.Fatal("expected userProvided EmbedQuery to always fail")
	}
	if _, err := e.EmbedDocuments(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected userProvided EmbedDocuments to always fail")
	}
}

func TestUserProvidedValidateVector(t *testing.T) {
	dims := 4
	up := &UserProvidedEmbedder{dimensions: dims}
	if err := up.ValidateVector(make([]float32, 4)); err != nil {
		t.Fatalf("expected a matching vector to validate, got %v", err)
	}
	if err := up.ValidateVector(make([]float32, 3)); err == nil {
		t.Fatal("expected a mismatched vector length to be rejected")
	}
}
