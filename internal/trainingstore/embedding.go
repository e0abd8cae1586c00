package trainingstore

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/philippgille/chromem-go"
)

const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

const (
	defaultHashDimensions = 512
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	defaultOpenAIModel    = "text-embedding-3-small"
	defaultOllamaModel    = "nomic-embed-text"
)

type EmbeddingConfig struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
}

// NewEmbeddingFunc returns the chromem embedding function for the configured provider.
func NewEmbeddingFunc(cfg EmbeddingConfig) (chromem.EmbeddingFunc, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderHash:
		return HashEmbedding(cfg.Dimensions), nil
	case ProviderOpenAI:
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("embedding api key is required for provider %q", ProviderOpenAI)
		}
		baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
		model := strings.TrimSpace(cfg.Model)
		if model == "" {
			model = defaultOpenAIModel
		}
		return chromem.NewEmbeddingFuncOpenAICompat(baseURL, cfg.APIKey, model, nil), nil
	case ProviderOllama:
		model := strings.TrimSpace(cfg.Model)
		if model == "" {
			model = defaultOllamaModel
		}
		return chromem.NewEmbeddingFuncOllama(model, strings.TrimSpace(cfg.BaseURL)), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
}

// HashEmbedding embeds text locally by hashing lowercase word unigrams and bigrams
// into a fixed number of signed buckets. The result is L2-normalized.
func HashEmbedding(dimensions int) chromem.EmbeddingFunc {
	if dimensions <= 0 {
		dimensions = defaultHashDimensions
	}
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, dimensions)
		tokens := tokenize(text)
		for i, token := range tokens {
			addFeature(vec, token, 1)
			if i > 0 {
				addFeature(vec, tokens[i-1]+" "+token, 0.5)
			}
		}
		normalize(vec)
		return vec, nil
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

func addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	index := int(sum % uint64(len(vec)))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[index] += weight
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Empty text still needs a valid unit vector.
		vec[0] = 1
		return
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
}
