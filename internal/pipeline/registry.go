package pipeline

import (
	"context"
	"fmt"

	"github.com/kestrelsearch/kestrel/internal/embed"
)

// ProviderRegistry selects and constructs an EmbeddingProvider from a
// provider name and model. It is a thin adapter over embed.NewEmbedder's
// provider switch: the registry exists so the CLI layer depends on the
// abstract EmbeddingProvider contract and never imports internal/embed
// directly.
type ProviderRegistry struct{}

// NewProviderRegistry constructs a ProviderRegistry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{}
}

// ResolveOptions carries the config-derived limits Resolve applies to the
// constructed provider; a zero value falls back to hardcoded defaults.
type ResolveOptions struct {
	MaxTokensPerRequest  int
	MaxRequestsPerMinute int
	MaxTokensPerMinute   int
	RecommendedBatchSize int
}

// Resolve builds the EmbeddingProvider named by provider ("ollama",
// "static", "mlx", or "" for auto-detect) and model, wrapping the
// underlying embedder with EmbedderAdapter so its errors and dimensions
// flow through the pipeline's own taxonomy. Limits unset in opts fall back
// to the package's hardcoded defaults.
func (r *ProviderRegistry) Resolve(ctx context.Context, provider, model string, opts ResolveOptions) (EmbeddingProvider, error) {
	var providerType embed.ProviderType
	if provider == "" {
		providerType = embed.ProviderOllama
	} else {
		providerType = embed.ParseProvider(provider)
	}

	embedder, err := embed.NewEmbedder(ctx, providerType, model)
	if err != nil {
		return nil, fmt.Errorf("resolve embedding provider %q: %w", provider, err)
	}

	limits := ProviderLimits{
		MaxTokensPerRequest:  8000,
		MaxRequestsPerMinute: 6000,
		MaxTokensPerMinute:   1_000_000,
		RecommendedBatchSize: embed.DefaultBatchSize,
	}
	if opts.MaxTokensPerRequest > 0 {
		limits.MaxTokensPerRequest = opts.MaxTokensPerRequest
	}
	if opts.MaxRequestsPerMinute > 0 {
		limits.MaxRequestsPerMinute = opts.MaxRequestsPerMinute
	}
	if opts.MaxTokensPerMinute > 0 {
		limits.MaxTokensPerMinute = opts.MaxTokensPerMinute
	}
	if opts.RecommendedBatchSize > 0 {
		limits.RecommendedBatchSize = opts.RecommendedBatchSize
	}
	return NewEmbedderAdapter(string(providerType), embedder, limits), nil
}
