package embedder

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/pdfkb/pdfkb-search/internal/corpus"
)

// Trigram features carry half the weight of whole words, enough to pull
// "network" and "networks" together without drowning exact terms
const trigramWeight = 0.5

// LocalProvider embeds text offline with feature hashing: each token and each
// character trigram of a token is hashed into one of LocalDimension signed
// buckets and the result is L2-normalized. Vectors are deterministic and need
// no model download.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model: DefaultLocalModel,
		cache: cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := KeyFor(l.model, req.Text)
	vec, ok := l.cache.Get(key)
	if !ok {
		vec = hashingVector(req.Text, LocalDimension)
		l.cache.Add(key, vec)
	}

	return &Embedding{
		Vector:    vec,
		Dimension: LocalDimension,
		Provider:  ProviderLocal,
		Model:     l.model,
	}, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// hashingVector builds the signed feature-hashing vector of text. Text with
// no tokens yields the zero vector.
func hashingVector(text string, dim int) []float32 {
	acc := make([]float64, dim)
	for _, tok := range corpus.Tokenize(text) {
		addFeature(acc, "w:"+tok, 1)

		runes := []rune(tok)
		if len(runes) < 4 {
			continue
		}
		padded := append(append([]rune{'^'}, runes...), '$')
		for i := 0; i+3 <= len(padded); i++ {
			addFeature(acc, "t:"+string(padded[i:i+3]), trigramWeight)
		}
	}

	vec := make([]float32, dim)
	for i, v := range acc {
		vec[i] = float32(v)
	}
	return NormalizeVector(vec)
}

func addFeature(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(len(acc)))
	// The top bit picks the sign so collisions cancel out on average
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}
