// Package embedder implements the pluggable vector-embedding subsystem:
// per-source configuration validation, document templating for rendering
// searchable text, fingerprinting for vector-invalidation on config drift,
// and the embedder implementations themselves (OpenAI-compatible, generic
// REST, user-provided, and a local FastEmbed stub).
package embedder

import "fmt"

// Source enumerates the supported embedder backends.
type Source string

const (
	SourceOpenAI       Source = "openAi"
	SourceRest         Source = "rest"
	SourceUserProvided Source = "userProvided"
	SourceFastEmbed    Source = "fastEmbed"
)

// Config is the user-supplied configuration for one named embedder.
type Config struct {
	Source                   Source            `json:"source"`
	Model                    *string           `json:"model,omitempty"`
	APIKey                   *string           `json:"apiKey,omitempty"`
	Dimensions               *int              `json:"dimensions,omitempty"`
	URL                      *string           `json:"url,omitempty"`
	Request                  any               `json:"request,omitempty"`
	Response                 any               `json:"response,omitempty"`
	Headers                  map[string]string `json:"headers,omitempty"`
	DocumentTemplate         *string           `json:"documentTemplate,omitempty"`
	DocumentTemplateMaxBytes *int              `json:"documentTemplateMaxBytes,omitempty"`
}

// Validate checks that the fields required by Source are present.
func (c Config) Validate() error {
	switch c.Source {
	case SourceOpenAI, "":
		if c.APIKey == nil {
			return fmt.Errorf("embedder: openAi embedder requires `apiKey`")
		}
	case SourceRest:
		var missing []string
		if c.URL == nil {
			missing = append(missing, "`url`")
		}
		if c.Request == nil {
			missing = append(missing, "`request`")
		}
		if c.Response == nil {
			missing = append(missing, "`response`")
		}
		if len(missing) > 0 {
			return fmt.Errorf("embedder: rest embedder requires %v", missing)
		}
	case SourceUserProvided:
		if c.Dimensions == nil {
			return fmt.Errorf("embedder: userProvided embedder requires `dimensions`")
		}
	case SourceFastEmbed:
		// No mandatory fields; dimension conflicts are checked once the
		// model lookup table resolves the model's declared dimensions.
	default:
		return fmt.Errorf("embedder: unknown source %q", c.Source)
	}
	return nil
}

// DocumentTemplateConfig builds a DocumentTemplate from this config's
// template fields.
func (c Config) DocumentTemplateConfig() DocumentTemplate {
	return NewDocumentTemplate(c.DocumentTemplate, c.DocumentTemplateMaxBytes)
}
