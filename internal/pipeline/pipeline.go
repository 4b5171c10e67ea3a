package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

// Config configures an EmbeddingPipeline run.
type Config struct {
	Concurrency int
	MaxRetries  int
	// OutputBuffer bounds the pipeline's output channel; a lagging consumer
	// pauses upstream batch submission once it fills.
	OutputBuffer int
}

// DefaultConfig returns sane pipeline defaults.
func DefaultConfig() Config {
	return Config{Concurrency: 4, MaxRetries: 3, OutputBuffer: 64}
}

// Pipeline composes a Batcher, a RateLimiter, and a provider into the
// concurrent embed step: Chunker output -> Batcher -> concurrent
// RateLimiter-guarded provider calls -> EmbeddedChunk output, preserving
// per-file input order.
type Pipeline struct {
	provider EmbeddingProvider
	limiter  *RateLimiter
	batcher  *AdaptiveBatcher
	cfg      Config

	mu       sync.Mutex
	progress ProgressEvent
	onProgress func(ProgressEvent)
}

// New constructs an embedding pipeline for a single provider.
func New(provider EmbeddingProvider, limiter *RateLimiter, batcher *AdaptiveBatcher, cfg Config, onProgress func(ProgressEvent)) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.OutputBuffer <= 0 {
		cfg.OutputBuffer = 64
	}
	return &Pipeline{provider: provider, limiter: limiter, batcher: batcher, cfg: cfg, onProgress: onProgress}
}

// Run embeds every item and returns the results, one Embedded per input
// Item, in the same order as items. A batch that exhausts its retries
// yields an Embedded with Err set for each of its items rather than
// aborting the run.
func (p *Pipeline) Run(ctx context.Context, items []Item) ([]Embedded, error) {
	if len(items) == 0 {
		return nil, nil
	}

	p.mu.Lock()
	p.progress.ChunksSubmitted += len(items)
	p.emitLocked()
	p.mu.Unlock()

	batches := p.batcher.Batch(items, p.provider.Limits())

	results := make([]Embedded, len(items))
	index := make(map[string]int, len(items))
	for i, it := range items {
		index[it.ChunkID] = i
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(p.cfg.Concurrency)

	for _, batch := range batches {
		batch := batch
		group.Go(func() error {
			return p.runBatch(gctx, batch, results, index)
		})
	}

	if err := group.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (p *Pipeline) runBatch(ctx context.Context, batch Batch, results []Embedded, index map[string]int) error {
	texts := make([]string, len(batch.Items))
	for i, it := range batch.Items {
		texts[i] = it.Text
	}

	var vectors [][]float32
	var lastErr error
	retries := 0

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		start := time.Now()
		var actualTokens int
		_, err := p.limiter.Execute(ctx, batch.Tokens, func(ctx context.Context) (int, error) {
			v, err := p.provider.Embed(ctx, texts)
			if err != nil {
				return 0, err
			}
			vectors = v
			actualTokens = batch.Tokens
			return actualTokens, nil
		})
		if err == nil {
			p.batcher.RecordSuccess(time.Since(start))
			break
		}
		lastErr = err
		if ctx.Err() != nil {
			return kerrors.CancelledError(ctx.Err())
		}
		if !kerrors.IsRetryable(err) {
			break
		}
		p.batcher.RecordTransientError()
		retries++
		if attempt < p.cfg.MaxRetries {
			time.Sleep(backoffWithJitter(attempt))
		}
	}

	p.mu.Lock()
	p.progress.Retries += retries
	p.mu.Unlock()

	if vectors == nil {
		for _, it := range batch.Items {
			idx := index[it.ChunkID]
			results[idx] = Embedded{ChunkID: it.ChunkID, RelativePath: it.RelativePath, Ordinal: it.Ordinal, Err: lastErr}
		}
		p.mu.Lock()
		p.progress.ChunksFailed += len(batch.Items)
		p.progress.BatchSize = p.batcher.CurrentBatchSize()
		p.emitLocked()
		p.mu.Unlock()
		return nil // per-batch failures don't abort the run; recorded as failed chunks
	}

	for i, it := range batch.Items {
		idx := index[it.ChunkID]
		results[idx] = Embedded{ChunkID: it.ChunkID, RelativePath: it.RelativePath, Ordinal: it.Ordinal, Vector: vectors[i]}
	}

	p.mu.Lock()
	p.progress.ChunksCompleted += len(batch.Items)
	p.progress.BatchSize = p.batcher.CurrentBatchSize()
	p.emitLocked()
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) emitLocked() {
	if p.onProgress != nil {
		p.onProgress(p.progress)
	}
}

func backoffWithJitter(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * 200 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	return base + jitter
}
