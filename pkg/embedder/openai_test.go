package embedder

import "testing"

func TestNewOpenAIEmbedderDefaults(t *testing.T) {
	e, err := newOpenAIEmbedder(Config{APIKey: strp("sk-test")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.baseURL != defaultOpenAIBaseURL {
		t.Fatalf("expected default base url, got %q", e.baseURL)
	}
	if e.model != "text-embedding-3-small" {
		t.Fatalf("expected default model, got %q", e.model)
	}
	if e.configured {
		t.Fatal("expected dimensions to be unconfigured until auto-detected")
	}
}

func TestNewOpenAIEmbedderPinnedDimensions(t *testing.T) {
	e, err := newOpenAIEmbedder(Config{APIKey: strp("sk-test"), Dimensions: intp(256)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.configured || e.Dimensions() != 256 {
		t.Fatalf("expected pinned dimensions to be honored, got configured=%v dims=%d", e.configured, e.Dimensions())
	}
}

func TestNewOpenAIEmbedderCustomBaseURLAndModel(t *testing.T) {
	e, err := newOpenAIEmbedder(Config{
		APIKey: strp("sk-test"),
		URL:    strp("https://my-proxy.internal"),
		Model:  strp("custom-embed-v2"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.baseURL != "https://my-proxy.internal" || e.model != "custom-embed-v2" {
		t.Fatalf("got baseURL=%q model=%q", e.baseURL, e.model)
	}
}
