package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultLocalModel  = "hashing-384"

	// Default endpoints
	DefaultJinaURL   = "https://api.jina.ai/v1/embeddings"
	DefaultOpenAIURL = "https://api.openai.com/v1/embeddings"
	DefaultOllamaURL = "http://localhost:11434"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	OllamaDimension = 768
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	DefaultCacheSize      = 10000
	DefaultRequestTimeout = 30 * time.Second

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// HTTPConfig configures a provider that calls a remote embedding API
type HTTPConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	Dimension         int           // Zero selects the provider default
	RequestsPerSecond float64       // Zero or negative disables throttling
	Timeout           time.Duration // Per request
	Retry             *RetryConfig  // Nil selects DefaultRetryConfig
}

// wireFormat encodes requests and decodes responses of one API family
type wireFormat interface {
	endpoint(baseURL string) string
	encode(texts []string, model string) ([]byte, error)
	decode(body io.Reader, n int) ([][]float32, string, error)
}

// HTTPProvider implements Embedder over an HTTP embedding API
type HTTPProvider struct {
	name       string
	apiKey     string
	model      string
	url        string
	dimension  int
	format     wireFormat
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	cache      *Cache
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(cfg HTTPConfig, cache *Cache) (*HTTPProvider, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvJinaAPIKey)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	return newHTTPProvider(ProviderJina, cfg, DefaultJinaModel, DefaultJinaURL, JinaDimension, openAIFormat{}, cache), nil
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(cfg HTTPConfig, cache *Cache) (*HTTPProvider, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	return newHTTPProvider(ProviderOpenAI, cfg, DefaultOpenAIModel, DefaultOpenAIURL, OpenAIDimension, openAIFormat{}, cache), nil
}

// NewOllamaProvider creates an embedder backed by a local Ollama server.
// No API key is needed.
func NewOllamaProvider(cfg HTTPConfig, cache *Cache) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv(EnvOllamaHost)
	}
	return newHTTPProvider(ProviderOllama, cfg, DefaultOllamaModel, DefaultOllamaURL, OllamaDimension, ollamaFormat{}, cache), nil
}

func newHTTPProvider(name string, cfg HTTPConfig, model, baseURL string, dim int, format wireFormat, cache *Cache) *HTTPProvider {
	if cfg.Model != "" {
		model = cfg.Model
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	if cfg.Dimension > 0 {
		dim = cfg.Dimension
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	return &HTTPProvider{
		name:      name,
		apiKey:    cfg.APIKey,
		model:     model,
		url:       format.endpoint(baseURL),
		dimension: dim,
		format:    format,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
		cache:   cache,
	}
}

func (p *HTTPProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

// GenerateBatch embeds texts, serving cached vectors first and sending only
// the misses to the API
func (p *HTTPProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	embeddings := make([]*Embedding, len(req.Texts))
	var missTexts []string
	var missIdx []int
	for i, text := range req.Texts {
		if vec, ok := p.cache.Get(KeyFor(model, text)); ok {
			embeddings[i] = p.embedding(vec, model)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		vectors, err := retryWithBackoff(ctx, p.retry, func() ([][]float32, error) {
			return p.callAPI(ctx, missTexts, model)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, p.name, err)
		}

		for j, vec := range vectors {
			embeddings[missIdx[j]] = p.embedding(vec, model)
			p.cache.Add(KeyFor(model, missTexts[j]), vec)
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

func (p *HTTPProvider) embedding(vec []float32, model string) *Embedding {
	return &Embedding{Vector: vec, Dimension: len(vec), Provider: p.name, Model: model}
}

func (p *HTTPProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := p.format.encode(texts, model)
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		// Client errors other than throttling will fail the same way again
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, throttled(apiErr, resp.Header)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, permanent(apiErr)
		}
		return nil, apiErr
	}

	vectors, _, err := p.format.decode(resp.Body, len(texts))
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return vectors, nil
}

func (p *HTTPProvider) Dimension() int {
	return p.dimension
}

func (p *HTTPProvider) Provider() string {
	return p.name
}

func (p *HTTPProvider) Model() string {
	return p.model
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// openAIFormat is the request and response shape shared by OpenAI and Jina
type openAIFormat struct{}

func (openAIFormat) endpoint(baseURL string) string {
	return baseURL
}

func (openAIFormat) encode(texts []string, model string) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"input": texts,
		"model": model,
	})
}

func (openAIFormat) decode(body io.Reader, n int) ([][]float32, string, error) {
	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(body).Decode(&apiResp); err != nil {
		return nil, "", err
	}
	if len(apiResp.Data) != n {
		return nil, "", fmt.Errorf("expected %d embeddings, got %d", n, len(apiResp.Data))
	}

	// Results may arrive out of order; index ties them back to the input
	vectors := make([][]float32, n)
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= n || vectors[data.Index] != nil {
			return nil, "", fmt.Errorf("invalid embedding index %d", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	return vectors, apiResp.Model, nil
}

// ollamaFormat speaks Ollama's /api/embed endpoint
type ollamaFormat struct{}

func (ollamaFormat) endpoint(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/api/embed"
}

func (ollamaFormat) encode(texts []string, model string) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"model": model,
		"input": texts,
	})
}

func (ollamaFormat) decode(body io.Reader, n int) ([][]float32, string, error) {
	var apiResp struct {
		Model      string      `json:"model"`
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(body).Decode(&apiResp); err != nil {
		return nil, "", err
	}
	if len(apiResp.Embeddings) != n {
		return nil, "", fmt.Errorf("expected %d embeddings, got %d", n, len(apiResp.Embeddings))
	}
	return apiResp.Embeddings, apiResp.Model, nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(float64(val) / norm)
	}

	return result
}
