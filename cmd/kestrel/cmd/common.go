package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrelsearch/kestrel/internal/config"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
	"github.com/kestrelsearch/kestrel/internal/output"
	"github.com/kestrelsearch/kestrel/internal/pipeline"
	"github.com/kestrelsearch/kestrel/internal/preflight"
)

// loadProjectConfig loads configuration for the project rooted at dir,
// layering project file and environment overrides onto documented
// defaults. Commands call this once and thread the result through to
// IndexManager/QueryManager instead of reading ad hoc defaults themselves.
func loadProjectConfig(dir string) (*config.Config, error) {
	return config.Load(dir)
}

// defaultStoreRoot returns the directory repository stores are rooted at
// when --store isn't given: $KESTREL_STORE_ROOT if set, otherwise
// ~/.kestrel. The loaded configuration is not consulted.
func defaultStoreRoot() (string, error) {
	if root := os.Getenv("KESTREL_STORE_ROOT"); root != "" {
		return root, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".kestrel"), nil
}

// resolveOptionsFor builds the ResolveOptions a command should pass to
// ProviderRegistry.Resolve for the named provider (empty = cfg.DefaultProvider).
func resolveOptionsFor(cfg *config.Config, provider string) pipeline.ResolveOptions {
	p, ok := cfg.Provider(provider)
	if !ok {
		return pipeline.ResolveOptions{}
	}
	return pipeline.ResolveOptions{
		MaxTokensPerRequest:  p.MaxTokensPerRequest,
		MaxRequestsPerMinute: p.RateLimit.MaxRequestsPerMinute,
		MaxTokensPerMinute:   p.RateLimit.MaxTokensPerMinute,
		RecommendedBatchSize: cfg.Performance.BatchSize,
	}
}

// aliasForPath derives a repository alias from the last path component,
// falling back to "repo" for paths with no usable base name.
func aliasForPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	alias := filepath.Base(filepath.Clean(abs))
	if alias == "" || alias == "." || alias == string(filepath.Separator) {
		return "repo"
	}
	return alias
}

// runPreflight validates disk space, memory, write permissions, and file
// descriptor limits before a potentially long-running index/update run.
// Results are cached under storeRoot via a marker file so repeated runs
// against the same store don't re-check on every invocation.
func runPreflight(ctx context.Context, out *output.Writer, storeRoot, projectPath string) error {
	if !preflight.NeedsCheck(storeRoot) {
		return nil
	}

	checker := preflight.New()
	results := checker.RunAll(ctx, projectPath)

	var failed []string
	for _, r := range results {
		switch {
		case r.IsCritical():
			failed = append(failed, r.Name+": "+r.Message)
		case r.Status != preflight.StatusPass:
			out.Warningf("%s: %s", r.Name, r.Message)
		}
	}

	if checker.HasCriticalFailures(results) {
		return kerrors.ValidationError(fmt.Sprintf("preflight checks failed: %s", strings.Join(failed, "; ")), nil)
	}

	return preflight.MarkPassed(storeRoot)
}
