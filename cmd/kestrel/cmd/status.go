package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelsearch/kestrel/internal/index"
	"github.com/kestrelsearch/kestrel/internal/output"
	"github.com/kestrelsearch/kestrel/internal/store"
)

func newStatusCmd() *cobra.Command {
	var (
		alias      string
		storeRoot  string
		jsonOutput bool
		listSets   bool
	)

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show a repository's index status, or list known sets",
		Long: `Status reports a repository's store state, chunk and file
counts, embedding provider, and last-indexed time.

Pass --sets to list the named repository sets registered at the store
root instead of a single repository's status.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if storeRoot == "" {
				var err error
				storeRoot, err = defaultStoreRoot()
				if err != nil {
					return err
				}
			}

			if listSets {
				return runListSets(cmd, storeRoot, jsonOutput)
			}

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			if alias == "" {
				alias = aliasForPath(path)
			}
			return runStatus(cmd, storeRoot, path, alias, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&alias, "alias", "", "Repository alias (defaults to the directory's base name)")
	cmd.Flags().StringVar(&storeRoot, "store", "", "Store root directory (defaults to $KESTREL_STORE_ROOT or ~/.kestrel)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&listSets, "sets", false, "List registered repository sets instead")

	return cmd
}

type statusInfo struct {
	Alias               string `json:"alias"`
	RepoPath            string `json:"repoPath"`
	State               string `json:"state"`
	TotalFiles          int    `json:"totalFiles"`
	TotalChunks         int    `json:"totalChunks"`
	EmbeddingProviderID string `json:"embeddingProviderId"`
	ModelID             string `json:"modelId"`
	Dimensions          int    `json:"dimensions"`
	LastIndexedAt       string `json:"lastIndexedAt"`
}

func runStatus(cmd *cobra.Command, storeRoot, repoPath, alias string, jsonOutput bool) error {
	rs, err := store.Open(store.RepositoryStoreConfig{StoreRoot: storeRoot}, repoPath, alias)
	if err != nil {
		return err
	}
	defer func() { _ = rs.Close() }()

	md := rs.Metadata()
	info := statusInfo{
		Alias:               alias,
		RepoPath:            repoPath,
		State:               string(rs.State()),
		TotalFiles:          md.TotalFiles,
		TotalChunks:         md.TotalChunks,
		EmbeddingProviderID: md.EmbeddingProviderID,
		ModelID:             md.ModelID,
		Dimensions:          md.Dimensions,
		LastIndexedAt:       md.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00"),
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("i", "%s (%s)", info.Alias, info.State)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  files:    %d\n", info.TotalFiles)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  chunks:   %d\n", info.TotalChunks)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  provider: %s (%s, %d dims)\n", info.EmbeddingProviderID, info.ModelID, info.Dimensions)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  indexed:  %s\n", info.LastIndexedAt)
	return nil
}

func runListSets(cmd *cobra.Command, storeRoot string, jsonOutput bool) error {
	sets, err := index.OpenSetRegistry(storeRoot)
	if err != nil {
		return err
	}
	names := sets.Names()

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(names)
	}

	out := output.New(cmd.OutOrStdout())
	if len(names) == 0 {
		out.Status("i", "no sets registered")
		return nil
	}
	for _, name := range names {
		members, _ := sets.Get(name)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%d repositories)\n", name, len(members))
	}
	return nil
}
