package embedder

import "testing"

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

func TestConfigValidateOpenAIRequiresAPIKey(t *testing.T) {
	c := Config{Source: SourceOpenAI}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when openAi config has no apiKey")
	}
	c.APIKey = strp("sk-test")
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigValidateEmptySourceDefaultsToOpenAI(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error: default source requires apiKey")
	}
}

func TestConfigValidateRestRequiresURLAndTemplates(t *testing.T) {
	c := Config{Source: SourceRest}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for incomplete rest config")
	}
	c.URL = strp("https://example.com/embed")
	c.Request = map[string]any{"text": "{{text}}"}
	c.Response = map[string]any{"embedding": "{{embedding}}"}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigValidateUserProvidedRequiresDimensions(t *testing.T) {
	c := Config{Source: SourceUserProvided}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error: userProvided requires dimensions")
	}
	c.Dimensions = intp(256)
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigValidateFastEmbedHasNoRequiredFields(t *testing.T) {
	c := Config{Source: SourceFastEmbed}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigValidateUnknownSource(t *testing.T) {
	c := Config{Source: "bogus"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown source")
	}
}
