package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

type fakeProvider struct {
	dims    int
	fail    int // number of calls to fail before succeeding
	calls   int
	limits  ProviderLimits
}

func (f *fakeProvider) ID() string    { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }
func (f *fakeProvider) Limits() ProviderLimits {
	if f.limits.MaxTokensPerRequest == 0 {
		return ProviderLimits{MaxTokensPerRequest: 1000, MaxRequestsPerMinute: 1000, MaxTokensPerMinute: 100000, RecommendedBatchSize: 8, EmbeddingDimensions: f.dims}
	}
	return f.limits
}
func (f *fakeProvider) EstimateTokens(text string) int { return len(text)/4 + 1 }
func (f *fakeProvider) Test(ctx context.Context) (TestResult, error) {
	return TestResult{OK: true}, nil
}
func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.fail {
		return nil, kerrors.ProviderTransientError("simulated timeout", errors.New("timeout"))
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dims)
		for j := range vec {
			vec[j] = float32(i + j)
		}
		out[i] = vec
	}
	return out, nil
}

func TestPipelinePreservesOrderPerFile(t *testing.T) {
	provider := &fakeProvider{dims: 4}
	limiter := NewRateLimiter(RateLimiterConfig{MaxRequestsPerMinute: 1000, MaxTokensPerMinute: 100000, MaxConcurrency: 2})
	batcher := NewAdaptiveBatcher(1, 8)
	p := New(provider, limiter, batcher, DefaultConfig(), nil)

	items := []Item{
		{ChunkID: "a1", RelativePath: "a.go", Ordinal: 0, Text: "one", Tokens: 1},
		{ChunkID: "a2", RelativePath: "a.go", Ordinal: 1, Text: "two", Tokens: 1},
		{ChunkID: "a3", RelativePath: "a.go", Ordinal: 2, Text: "three", Tokens: 1},
	}

	results, err := p.Run(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, items[i].ChunkID, r.ChunkID)
		assert.NoError(t, r.Err)
		assert.Len(t, r.Vector, 4)
	}
}

func TestPipelineRetriesTransientErrors(t *testing.T) {
	provider := &fakeProvider{dims: 2, fail: 2}
	limiter := NewRateLimiter(RateLimiterConfig{MaxRequestsPerMinute: 1000, MaxTokensPerMinute: 100000, MaxConcurrency: 1})
	batcher := NewAdaptiveBatcher(1, 4)
	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	p := New(provider, limiter, batcher, cfg, nil)

	items := []Item{{ChunkID: "x", RelativePath: "x.go", Ordinal: 0, Text: "hello", Tokens: 1}}
	results, err := p.Run(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Greater(t, provider.calls, 2)
}

func TestPipelineExhaustedRetriesMarksChunksFailed(t *testing.T) {
	provider := &fakeProvider{dims: 2, fail: 100}
	limiter := NewRateLimiter(RateLimiterConfig{MaxRequestsPerMinute: 1000, MaxTokensPerMinute: 100000, MaxConcurrency: 1})
	batcher := NewAdaptiveBatcher(1, 4)
	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	p := New(provider, limiter, batcher, cfg, nil)

	items := []Item{{ChunkID: "y", RelativePath: "y.go", Ordinal: 0, Text: "hello", Tokens: 1}}
	results, err := p.Run(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestRateLimiterAdmitsWithinWindow(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxRequestsPerMinute: 2, MaxTokensPerMinute: 1000, MaxConcurrency: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := rl.Execute(ctx, 10, func(ctx context.Context) (int, error) { return 10, nil })
	require.NoError(t, err)
	_, err = rl.Execute(ctx, 10, func(ctx context.Context) (int, error) { return 10, nil })
	require.NoError(t, err)

	// Third call exceeds the 2-request window within the timeout and should
	// observe context cancellation rather than being admitted.
	_, err = rl.Execute(ctx, 10, func(ctx context.Context) (int, error) { return 10, nil })
	assert.Error(t, err)
}

func TestRateLimiterConcurrentExecuteRecordsEveryEntry(t *testing.T) {
	const n = 50
	rl := NewRateLimiter(RateLimiterConfig{MaxRequestsPerMinute: 1000, MaxTokensPerMinute: 1000000, MaxConcurrency: 8})

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := rl.Execute(context.Background(), 10, func(ctx context.Context) (int, error) {
				return 10, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	require.Len(t, rl.log, n)
	for _, rec := range rl.log {
		assert.Equal(t, 10, rec.tokens, "every concurrent call's own entry must record its actual tokens")
	}
}
