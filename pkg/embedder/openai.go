package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAIEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client

	mu         sync.Mutex
	dimensions int // 0 until auto-detected from the first response
	configured bool
}

func newOpenAIEmbedder(config Config) (*OpenAIEmbedder, error) {
	base := defaultOpenAIBaseURL
	if config.URL != nil {
		base = *config.URL
	}
	model := "text-embedding-3-small"
	if config.Model != nil {
		model = *config.Model
	}
	e := &OpenAIEmbedder{
		baseURL: base,
		apiKey:  *config.APIKey,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	if config.Dimensions != nil {
		e.dimensions = *config.Dimensions
		e.configured = true
	}
	return e, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimensions
}

func (e *OpenAIEmbedder) Source() Source { return SourceOpenAI }

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type openAIRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
	Dimensions     *int     `json:"dimensions,omitempty"`
}

type openAIResponseItem struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type openAIResponse struct {
	Data []openAIResponseItem `json:"data"`
}

func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openAIRequest{Input: texts, Model: e.model, EncodingFormat: "float"}
	e.mu.Lock()
	if e.configured {
		d := e.dimensions
		req.Dimensions = &d
	}
	e.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedder: openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedder: openai endpoint returned status %d", resp.StatusCode)
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embedder: decoding openai response: %w", err)
	}

	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })

	vectors := make([][]float32, len(out.Data))
	for i, item := range out.Data {
		vectors[i] = item.Embedding
	}

	e.mu.Lock()
	if !e.configured && len(vectors) > 0 {
		e.dimensions = len(vectors[0])
		e.configured = true
	}
	e.mu.Unlock()

	return vectors, nil
}
