// Package index orchestrates full and incremental index runs and answers
// search queries by composing the scanner, chunker, pipeline, store, and
// ranker packages.
package index

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kestrelsearch/kestrel/internal/chunk"
	"github.com/kestrelsearch/kestrel/internal/config"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
	"github.com/kestrelsearch/kestrel/internal/pipeline"
	"github.com/kestrelsearch/kestrel/internal/scanner"
	"github.com/kestrelsearch/kestrel/internal/store"
)

// DefaultCommitThreshold bounds work lost on failure: a periodic commit
// happens after this many chunks have been staged.
const DefaultCommitThreshold = 64

// Options configures a single index or update run.
type Options struct {
	Provider        pipeline.EmbeddingProvider
	Concurrency     int
	ForceFullIndex  bool
	ExcludePatterns []string
	ChunkOptions    chunk.Options
	ProgressSink    func(pipeline.ProgressEvent)
	CommitThreshold  int
	BM25Backend      string
	Submodules       *config.SubmoduleConfig
	CompressPayloads bool
}

// ApplyConfig fills in the fields a loaded Config controls: exclusion
// globs, chunk sizing, indexing concurrency, and submodule discovery.
// Fields already set by the caller (e.g. a CLI flag) are left untouched.
func (o *Options) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if len(o.ExcludePatterns) == 0 {
		o.ExcludePatterns = cfg.ExcludeGlobs()
	}
	if o.ChunkOptions == (chunk.Options{}) {
		o.ChunkOptions = chunk.Options{
			TargetChars:           cfg.Performance.ChunkSize,
			MaxChars:              cfg.Performance.ChunkSize * 2,
			MinChars:              chunk.DefaultMinChars,
			OverlapRatio:          cfg.ChunkOverlapRatio(),
			RespectLineBreaks:     true,
			RespectWordBoundaries: true,
		}
	}
	if o.Concurrency == 0 {
		o.Concurrency = cfg.Performance.Concurrency
	}
	if o.Submodules == nil {
		submodules := cfg.Submodules
		o.Submodules = &submodules
	}
	o.CompressPayloads = cfg.Storage.Compression.Enabled
}

// IndexReport summarizes a completed index or update run.
type IndexReport struct {
	RepoID        string
	FilesProcessed int
	FilesSkipped  int
	ChunksAdded   int
	ChunksDeleted int
	Duration      time.Duration
	Errors        []string
	Warnings      []string
}

// Manager orchestrates index runs against repository stores rooted at
// StoreRoot.
type Manager struct {
	StoreRoot string
}

// NewManager constructs a Manager persisting repository stores under root.
func NewManager(root string) *Manager {
	return &Manager{StoreRoot: root}
}

// Index runs a full or incremental index of repoPath under the given alias,
// per spec.md §4.11: Walker -> ChangeDetector -> for each changed/added
// file: read -> Chunker -> MetadataExtractor -> EmbeddingPipeline ->
// RepositoryStore.put, with periodic commits and a final deleted-path
// cleanup, file-hash map, and metadata save.
func (m *Manager) Index(ctx context.Context, repoPath, alias string, opts Options) (*IndexReport, error) {
	start := time.Now()
	if opts.CommitThreshold <= 0 {
		opts.CommitThreshold = DefaultCommitThreshold
	}
	if opts.Provider == nil {
		return nil, kerrors.ValidationError("an embedding provider is required", nil)
	}

	rs, err := store.Open(store.RepositoryStoreConfig{StoreRoot: m.StoreRoot, BM25Backend: opts.BM25Backend, CompressPayloads: opts.CompressPayloads}, repoPath, alias)
	if err != nil {
		return nil, kerrors.StoreError("open repository store", err)
	}
	defer rs.Close()

	if opts.ForceFullIndex {
		if err := rs.Repair(); err != nil {
			return nil, kerrors.StoreError("force full index repair", err)
		}
	}

	if err := rs.BeginIndexing(ctx); err != nil {
		return nil, err
	}

	report := &IndexReport{RepoID: rs.Metadata().RepoID}

	files, err := walk(ctx, repoPath, opts.ExcludePatterns, opts.Submodules)
	if err != nil {
		_ = rs.AbortIndexing()
		return nil, kerrors.Wrap(kerrors.ErrCodeWalkRootFailed, err)
	}

	changes, err := NewChangeDetector().Detect(files, rs.FileHashes())
	if err != nil {
		_ = rs.AbortIndexing()
		return nil, err
	}

	newHashes := rs.FileHashes()
	pendingChunks := 0
	batcher := pipeline.NewAdaptiveBatcher(1, opts.Provider.Limits().RecommendedBatchSize)
	limiter := pipeline.NewRateLimiter(pipeline.RateLimiterConfig{
		MaxRequestsPerMinute: opts.Provider.Limits().MaxRequestsPerMinute,
		MaxTokensPerMinute:   opts.Provider.Limits().MaxTokensPerMinute,
		MaxConcurrency:       maxInt(1, opts.Concurrency),
	})
	pipelineCfg := pipeline.DefaultConfig()
	if opts.Concurrency > 0 {
		pipelineCfg.Concurrency = opts.Concurrency
	}
	pl := pipeline.New(opts.Provider, limiter, batcher, pipelineCfg, opts.ProgressSink)

	chunker := chunk.New(opts.ChunkOptions)

	for _, c := range changes {
		select {
		case <-ctx.Done():
			_ = rs.AbortIndexing()
			return nil, kerrors.CancelledError(ctx.Err())
		default:
		}

		switch c.Kind {
		case ChangeDeleted:
			if err := rs.DeleteByPath(ctx, c.RelativePath); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("delete %s: %v", c.RelativePath, err))
				continue
			}
			delete(newHashes, c.RelativePath)
			report.ChunksDeleted++
			continue
		case ChangeUnchanged:
			report.FilesSkipped++
			continue
		}

		content, err := os.ReadFile(c.File.AbsPath)
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("read %s: %v", c.RelativePath, err))
			continue
		}

		if err := rs.DeleteByPath(ctx, c.RelativePath); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("clear prior chunks for %s: %v", c.RelativePath, err))
			continue
		}

		chunks := chunker.Chunk(string(content), c.RelativePath, c.File.AbsPath)
		items := make([]pipeline.Item, len(chunks))
		metas := make([]*chunk.Metadata, len(chunks))
		lines := splitLines(string(content))
		for i, ch := range chunks {
			ch.ChunkID = chunk.GenerateChunkID(alias, c.RelativePath, ch.Ordinal, c.ContentHash)
			md := chunk.Analyze(ch.Content, c.File.Language, c.RelativePath)
			before, after := chunk.SurroundingContext(lines, ch.StartLine, ch.EndLine, chunk.DefaultContextLines)
			md.SurroundingContextBefore = before
			md.SurroundingContextAfter = after
			metas[i] = md
			items[i] = pipeline.Item{ChunkID: ch.ChunkID, RelativePath: c.RelativePath, Ordinal: ch.Ordinal, Text: ch.Content, Tokens: ch.EstimatedTokens}
		}

		embedded, err := pl.Run(ctx, items)
		if err != nil {
			_ = rs.AbortIndexing()
			return nil, err
		}

		toPut := make([]*store.EmbeddedChunk, 0, len(embedded))
		for i, e := range embedded {
			if e.Err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("embed %s#%d: %v", c.RelativePath, i, e.Err))
				continue
			}
			ch := chunks[i]
			md := metas[i]
			toPut = append(toPut, &store.EmbeddedChunk{
				ChunkID:       ch.ChunkID,
				RelativePath:  ch.RelativePath,
				AbsolutePath:  ch.AbsolutePath,
				Content:       ch.Content,
				StartLine:     ch.StartLine,
				EndLine:       ch.EndLine,
				SizeChars:     ch.SizeChars,
				Tokens:        ch.EstimatedTokens,
				Language:      md.Language,
				Type:          string(md.Type),
				FunctionName:  md.FunctionName,
				ClassName:     md.ClassName,
				Imports:       md.Imports,
				ContextBefore: md.SurroundingContextBefore,
				ContextAfter:  md.SurroundingContextAfter,
				Vector:        e.Vector,
				ProviderID:    opts.Provider.ID(),
				ModelID:       opts.Provider.Model(),
			})
		}

		if len(toPut) > 0 {
			if err := rs.Put(ctx, toPut); err != nil {
				_ = rs.AbortIndexing()
				return nil, err
			}
		}

		newHashes[c.RelativePath] = store.FileHashEntry{
			RelativePath: c.RelativePath,
			ContentHash:  c.ContentHash,
			SizeBytes:    c.SizeBytes,
			LastModified: c.File.ModTime,
		}
		report.FilesProcessed++
		report.ChunksAdded += len(toPut)
		pendingChunks += len(toPut)

		if pendingChunks >= opts.CommitThreshold {
			rs.SetFileHashes(newHashes)
			if err := rs.CommitIndexing(); err != nil {
				return nil, err
			}
			if err := rs.BeginIndexing(ctx); err != nil {
				return nil, err
			}
			pendingChunks = 0
		}
	}

	rs.SetFileHashes(newHashes)
	if err := rs.CommitIndexing(); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	return report, nil
}

// Update runs an incremental index pass: identical to Index with
// ForceFullIndex always false, whatever the caller passed.
func (m *Manager) Update(ctx context.Context, repoPath, alias string, opts Options) (*IndexReport, error) {
	opts.ForceFullIndex = false
	return m.Index(ctx, repoPath, alias, opts)
}

func walk(ctx context.Context, repoPath string, excludePatterns []string, submodules *config.SubmoduleConfig) ([]*scanner.FileInfo, error) {
	s, err := scanner.New()
	if err != nil {
		return nil, err
	}
	results, err := s.Scan(ctx, &scanner.ScanOptions{RootDir: repoPath, ExcludePatterns: excludePatterns, RespectGitignore: true, Submodules: submodules})
	if err != nil {
		return nil, err
	}
	var files []*scanner.FileInfo
	for r := range results {
		if r.Error != nil {
			continue
		}
		files = append(files, r.File)
	}
	return files, nil
}

func splitLines(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if r == '\n' {
			lines = append(lines, text[start:i])
			start = i + 1
		}
	}
	lines = append(lines, text[start:])
	return lines
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
