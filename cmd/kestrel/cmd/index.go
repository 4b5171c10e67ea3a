package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kestrelsearch/kestrel/internal/index"
	"github.com/kestrelsearch/kestrel/internal/output"
	"github.com/kestrelsearch/kestrel/internal/pipeline"
	"github.com/kestrelsearch/kestrel/internal/progress"
)

func newIndexCmd() *cobra.Command {
	var (
		alias     string
		backend   string
		model     string
		storeRoot string
		setName   string
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build a full index of a repository",
		Long: `Index walks the repository at path, chunks its files, embeds
each chunk, and persists the result to a per-repository store.

Running index again on an already-indexed repository rebuilds it from
scratch; use 'kestrel update' to pick up incremental changes instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			if alias == "" {
				alias = aliasForPath(path)
			}

			cfg, err := loadProjectConfig(path)
			if err != nil {
				return err
			}
			if storeRoot == "" {
				storeRoot = cfg.Storage.BaseDirectory
			}

			out := output.New(cmd.OutOrStdout())
			if err := runPreflight(ctx, out, storeRoot, path); err != nil {
				return err
			}

			provider, err := pipeline.NewProviderRegistry().Resolve(ctx, backend, model, resolveOptionsFor(cfg, backend))
			if err != nil {
				return err
			}

			opts := index.Options{Provider: provider}
			opts.ApplyConfig(cfg)
			var reporter *progress.Reporter
			if !quiet {
				reporter = progress.NewReporter(cmd.OutOrStdout(), true)
				opts.ProgressSink = reporter.Handle
			}
			mgr := index.NewManager(storeRoot)
			report, err := mgr.Index(ctx, path, alias, opts)
			if err != nil {
				return err
			}
			if reporter != nil {
				out.Status("", reporter.Summary())
			}

			if setName != "" {
				sets, err := index.OpenSetRegistry(storeRoot)
				if err != nil {
					return err
				}
				if err := sets.Add(setName, path, alias); err != nil {
					return err
				}
			}

			out.Successf("indexed %s as %q: %d files, %d chunks added, %d chunks deleted in %s",
				path, alias, report.FilesProcessed, report.ChunksAdded, report.ChunksDeleted, report.Duration)
			for _, w := range report.Warnings {
				out.Warning(w)
			}
			for _, e := range report.Errors {
				out.Error(e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&alias, "alias", "", "Repository alias (defaults to the directory's base name)")
	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend: auto-detect (default), ollama, mlx, or static")
	cmd.Flags().StringVar(&model, "model", "", "Embedding model name (backend-specific)")
	cmd.Flags().StringVar(&storeRoot, "store", "", "Store root directory (defaults to $KESTREL_STORE_ROOT or ~/.kestrel)")
	cmd.Flags().StringVar(&setName, "set", "", "Add the indexed repository to a named set")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress live embedding progress output")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	var (
		alias     string
		backend   string
		model     string
		storeRoot string
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "update [path]",
		Short: "Incrementally update an existing index",
		Long: `Update walks the repository at path, detects files added,
modified, or deleted since the last index or update run, and applies
only that delta to the repository's store.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			if alias == "" {
				alias = aliasForPath(path)
			}

			cfg, err := loadProjectConfig(path)
			if err != nil {
				return err
			}
			if storeRoot == "" {
				storeRoot = cfg.Storage.BaseDirectory
			}

			out := output.New(cmd.OutOrStdout())
			if err := runPreflight(ctx, out, storeRoot, path); err != nil {
				return err
			}

			provider, err := pipeline.NewProviderRegistry().Resolve(ctx, backend, model, resolveOptionsFor(cfg, backend))
			if err != nil {
				return err
			}

			opts := index.Options{Provider: provider}
			opts.ApplyConfig(cfg)
			var reporter *progress.Reporter
			if !quiet {
				reporter = progress.NewReporter(cmd.OutOrStdout(), true)
				opts.ProgressSink = reporter.Handle
			}
			mgr := index.NewManager(storeRoot)
			report, err := mgr.Update(ctx, path, alias, opts)
			if err != nil {
				return err
			}
			if reporter != nil {
				out.Status("", reporter.Summary())
			}

			out.Successf("updated %s as %q: %d files changed, %d skipped, %d chunks added, %d deleted in %s",
				path, alias, report.FilesProcessed, report.FilesSkipped, report.ChunksAdded, report.ChunksDeleted, report.Duration)
			for _, w := range report.Warnings {
				out.Warning(w)
			}
			for _, e := range report.Errors {
				out.Error(e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&alias, "alias", "", "Repository alias (defaults to the directory's base name)")
	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend: auto-detect (default), ollama, mlx, or static")
	cmd.Flags().StringVar(&model, "model", "", "Embedding model name (backend-specific)")
	cmd.Flags().StringVar(&storeRoot, "store", "", "Store root directory (defaults to $KESTREL_STORE_ROOT or ~/.kestrel)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress live embedding progress output")

	return cmd
}
