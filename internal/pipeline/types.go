// Package pipeline composes the embedding provider contract, rate limiting,
// adaptive batching, and the concurrent embedding pipeline that turns
// extracted chunks into embedded, storable records.
package pipeline

import "context"

// ProviderLimits describes the operating envelope of an EmbeddingProvider
// instance, used by the RateLimiter and AdaptiveBatcher to stay within it.
type ProviderLimits struct {
	MaxTokensPerRequest  int
	MaxRequestsPerMinute int
	MaxTokensPerMinute   int
	RecommendedBatchSize int
	EmbeddingDimensions  int
}

// TestResult is returned by an EmbeddingProvider's Test method.
type TestResult struct {
	OK         bool
	LatencyMs  int64
	ModelInfo  string
}

// EmbeddingProvider is the abstract capability the pipeline embeds chunks
// against; concrete variants wrap local or remote HTTP endpoints.
type EmbeddingProvider interface {
	ID() string
	Model() string
	Limits() ProviderLimits
	EstimateTokens(text string) int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Test(ctx context.Context) (TestResult, error)
}

// Item is one unit of pipeline input: a chunk's text paired with the
// identifying/ordering information the output needs to carry through.
type Item struct {
	ChunkID      string
	RelativePath string
	Ordinal      int
	Text         string
	Tokens       int
}

// Embedded is one unit of pipeline output.
type Embedded struct {
	ChunkID      string
	RelativePath string
	Ordinal      int
	Vector       []float32
	Err          error // set when this chunk's batch failed permanently
}

// ProgressEvent reports pipeline progress for the observability surface
// (filesDiscovered, chunksProduced, embeddingsGenerated, batchSize,
// retries, throughput, eta — callers compute throughput/ETA from the
// running counts this event carries).
type ProgressEvent struct {
	ChunksSubmitted int
	ChunksCompleted int
	ChunksFailed    int
	BatchSize       int
	Retries         int
}
