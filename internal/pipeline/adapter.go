package pipeline

import (
	"context"
	"time"

	"github.com/kestrelsearch/kestrel/internal/embed"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

// EmbedderAdapter wraps an embed.Embedder (the reference implementation's
// local/remote embedding backends — Ollama, static, cached) as the
// abstract EmbeddingProvider the pipeline consumes, classifying the
// embedder's errors into the Transient/Permanent taxonomy spec.md §4.4
// requires.
type EmbedderAdapter struct {
	id       string
	embedder embed.Embedder
	limits   ProviderLimits
}

// NewEmbedderAdapter builds an EmbeddingProvider from an existing embedder
// and its operating limits. limits.EmbeddingDimensions, if zero, is filled
// in from the embedder's own Dimensions().
func NewEmbedderAdapter(id string, embedder embed.Embedder, limits ProviderLimits) *EmbedderAdapter {
	if limits.EmbeddingDimensions == 0 {
		limits.EmbeddingDimensions = embedder.Dimensions()
	}
	if limits.RecommendedBatchSize == 0 {
		limits.RecommendedBatchSize = embed.DefaultBatchSize
	}
	return &EmbedderAdapter{id: id, embedder: embedder, limits: limits}
}

func (a *EmbedderAdapter) ID() string              { return a.id }
func (a *EmbedderAdapter) Model() string            { return a.embedder.ModelName() }
func (a *EmbedderAdapter) Limits() ProviderLimits   { return a.limits }
func (a *EmbedderAdapter) EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	tokens := n / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

func (a *EmbedderAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, classifyEmbedderError(err)
	}
	for _, v := range vectors {
		if len(v) != a.limits.EmbeddingDimensions {
			return nil, kerrors.DimensionMismatchError(a.limits.EmbeddingDimensions, len(v))
		}
	}
	return vectors, nil
}

func (a *EmbedderAdapter) Test(ctx context.Context) (TestResult, error) {
	start := time.Now()
	ok := a.embedder.Available(ctx)
	return TestResult{OK: ok, LatencyMs: time.Since(start).Milliseconds(), ModelInfo: a.embedder.ModelName()}, nil
}

// classifyEmbedderError maps an embedder's error onto the Transient/
// Permanent split spec.md §4.4 requires: every non-nil error, including
// context deadline/cancellation, is classified as transient (retryable),
// since the reference's embedders don't themselves distinguish auth/4xx
// failures from timeouts in their returned error values.
func classifyEmbedderError(err error) error {
	if err == nil {
		return nil
	}
	return kerrors.ProviderTransientError(err.Error(), err)
}
