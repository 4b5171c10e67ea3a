package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrelsearch/kestrel/internal/index"
	"github.com/kestrelsearch/kestrel/internal/output"
	"github.com/kestrelsearch/kestrel/internal/pipeline"
)

type searchOptions struct {
	scope     string
	limit     int
	language  string
	format    string
	backend   string
	model     string
	storeRoot string
	minScore  float64
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search one or more indexed repositories",
		Long: `Search embeds the query, fetches vector and keyword candidates
from the repositories named by --scope, re-ranks the merged candidate
set once, and prints the top results.

Scope is one of:
  set:<name>   a named group of repositories registered with --set on index
  all          every repository ever indexed
  <path>       a single repository's on-disk path, indexed under that alias`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scope, "scope", "s", "", "Search scope: set:<name>, all, or a repository path (required)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", index.DefaultK, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g. go, python)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Embedding backend: auto-detect (default), ollama, mlx, or static")
	cmd.Flags().StringVar(&opts.model, "model", "", "Embedding model name (backend-specific)")
	cmd.Flags().StringVar(&opts.storeRoot, "store", "", "Store root directory (defaults to $KESTREL_STORE_ROOT or ~/.kestrel)")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Drop results scoring below this fused score")
	_ = cmd.MarkFlagRequired("scope")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()

	cfg, err := loadProjectConfig(".")
	if err != nil {
		return err
	}

	storeRoot := opts.storeRoot
	if storeRoot == "" {
		storeRoot = cfg.Storage.BaseDirectory
	}

	provider, err := pipeline.NewProviderRegistry().Resolve(ctx, opts.backend, opts.model, resolveOptionsFor(cfg, opts.backend))
	if err != nil {
		return err
	}

	sets, err := index.OpenSetRegistry(storeRoot)
	if err != nil {
		return err
	}
	qm := index.NewQueryManager(storeRoot, sets)

	weights := cfg.RankerWeights()
	bm25Params := cfg.RankerBM25Params()
	results, err := qm.Query(ctx, opts.scope, query, index.QueryOptions{
		K:                opts.limit,
		Language:         opts.language,
		MinScore:         opts.minScore,
		Provider:         provider,
		RankerWeights:    &weights,
		BM25Params:       &bm25Params,
		CompressPayloads: cfg.Storage.Compression.Enabled,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	out := output.New(cmd.OutOrStdout())
	if len(results) == 0 {
		out.Status("i", "no results")
		return nil
	}
	for i, r := range results {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d. %s:%d-%d (score %.3f)\n", i+1, r.FilePath, r.StartLine, r.EndLine, r.Score)
		if r.FunctionName != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "   func %s\n", r.FunctionName)
		}
		out.Code(r.Content)
		out.Newline()
	}
	return nil
}
