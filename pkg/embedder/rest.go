package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RestEmbedder calls a generic HTTP endpoint configured by JSON request and
// response templates. "{{text}}" leaves are substituted with the document
// text; a template containing "{{..}}" inside an array alongside
// "{{text}}" marks that array as the batch-repeat slot.
type RestEmbedder struct {
	url             string
	headers         map[string]string
	requestTemplate any
	responseTemplate any
	dimensions      int
	client          *http.Client
}

func newRestEmbedder(config Config) (*RestEmbedder, error) {
	dims := 0
	if config.Dimensions != nil {
		dims = *config.Dimensions
	}
	return &RestEmbedder{
		url:               *config.URL,
		headers:           config.Headers,
		requestTemplate:   config.Request,
		responseTemplate:  config.Response,
		dimensions:        dims,
		client:            &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (e *RestEmbedder) Dimensions() int { return e.dimensions }
func (e *RestEmbedder) Source() Source  { return SourceRest }

func (e *RestEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder: rest endpoint returned no embeddings")
	}
	return vecs[0], nil
}

func (e *RestEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var body any
	if e.isBatchTemplate() {
		body = replaceBatchPlaceholders(e.requestTemplate, texts)
	} else if len(texts) == 1 {
		body = replaceTextPlaceholder(e.requestTemplate, texts[0])
	} else {
		// No batch slot in the template: issue one request per text.
		out := make([][]float32, 0, len(texts))
		for _, t := range texts {
			vecs, err := e.EmbedDocuments(ctx, []string{t})
			if err != nil {
				return nil, err
			}
			out = append(out, vecs...)
		}
		return out, nil
	}

	respValue, err := e.send(ctx, body)
	if err != nil {
		return nil, err
	}

	if e.isBatchResponse() {
		return extractBatchEmbeddings(respValue, e.responseTemplate)
	}
	vec, err := extractSingleEmbedding(respValue, e.responseTemplate)
	if err != nil {
		return nil, err
	}
	return [][]float32{vec}, nil
}

func (e *RestEmbedder) isBatchTemplate() bool {
	return jsonContainsStr(e.requestTemplate, "{{..}}")
}

func (e *RestEmbedder) isBatchResponse() bool {
	return jsonContainsStr(e.responseTemplate, "{{..}}")
}

func (e *RestEmbedder) send(ctx context.Context, body any) (any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("embedder: marshaling rest request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: rest request failed: %w", err)
	}
	defer resp.Body.Close()

	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embedder: decoding rest response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedder: rest endpoint returned status %d", resp.StatusCode)
	}
	return out, nil
}

func replaceTextPlaceholder(value any, text string) any {
	switch v := value.(type) {
	case string:
		if v == "{{text}}" {
			return text
		}
		return v
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = replaceTextPlaceholder(item, text)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = replaceTextPlaceholder(item, text)
		}
		return out
	default:
		return v
	}
}

// replaceBatchPlaceholders walks the template and replaces any array
// containing both "{{text}}" and "{{..}}" with the full texts array.
func replaceBatchPlaceholders(value any, texts []string) any {
	switch v := value.(type) {
	case []any:
		hasText := false
		hasRepeat := false
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s == "{{text}}" {
					hasText = true
				}
				if s == "{{..}}" {
					hasRepeat = true
				}
			}
		}
		if hasText && hasRepeat {
			out := make([]any, len(texts))
			for i, t := range texts {
				out[i] = t
			}
			return out
		}
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = replaceBatchPlaceholders(item, texts)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = replaceBatchPlaceholders(item, texts)
		}
		return out
	default:
		return v
	}
}

func jsonContainsStr(value any, target string) bool {
	switch v := value.(type) {
	case string:
		return v == target
	case []any:
		for _, item := range v {
			if jsonContainsStr(item, target) {
				return true
			}
		}
	case map[string]any:
		for _, item := range v {
			if jsonContainsStr(item, target) {
				return true
			}
		}
	}
	return false
}

// findEmbeddingPath locates the first "{{embedding}}" leaf in template,
// returning the path of map keys leading to it. Array indices are not part
// of the path: the first array ancestor is assumed to be the batch-repeat
// slot, matched positionally at extraction time.
func findEmbeddingPath(template any) ([]string, bool) {
	var path []string
	var walk func(v any) bool
	walk = func(v any) bool {
		switch val := v.(type) {
		case string:
			return val == "{{embedding}}"
		case map[string]any:
			for k, item := range val {
				path = append(path, k)
				if walk(item) {
					return true
				}
				path = path[:len(path)-1]
			}
		case []any:
			for _, item := range val {
				if walk(item) {
					return true
				}
			}
		}
		return false
	}
	if walk(template) {
		return path, true
	}
	return nil, false
}

func navigatePath(value any, path []string) any {
	current := value
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

func extractSingleEmbedding(response any, template any) ([]float32, error) {
	path, ok := findEmbeddingPath(template)
	if !ok {
		return nil, fmt.Errorf("embedder: response template has no {{embedding}} placeholder")
	}
	value := navigatePath(response, path)
	return valueToFloat32Vec(value)
}

func extractBatchEmbeddings(response any, template any) ([][]float32, error) {
	path, ok := findEmbeddingPath(template)
	if !ok {
		return nil, fmt.Errorf("embedder: response template has no {{embedding}} placeholder")
	}
	// The array ancestor of the {{embedding}} leaf is the repeat slot: follow
	// the path until it reaches an array in the actual response, then read
	// the rest of the path from each array item.
	current, rest := response, path
	for len(rest) > 0 {
		if _, isArr := current.([]any); isArr {
			break
		}
		current = navigatePath(current, rest[:1])
		rest = rest[1:]
	}
	arr, ok := current.([]any)
	if !ok {
		return nil, fmt.Errorf("embedder: expected array of embeddings at response path %v", path)
	}
	out := make([][]float32, 0, len(arr))
	for _, item := range arr {
		vec, err := valueToFloat32Vec(navigatePath(item, rest))
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func valueToFloat32Vec(value any) ([]float32, error) {
	arr, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("embedder: expected a numeric array for the embedding vector")
	}
	out := make([]float32, 0, len(arr))
	for _, item := range arr {
		n, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("embedder: embedding vector contains a non-numeric value")
		}
		out = append(out, float32(n))
	}
	return out, nil
}
