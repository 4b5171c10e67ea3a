// Package cmd provides the kestrel CLI commands.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
	"github.com/kestrelsearch/kestrel/internal/logging"
	"github.com/kestrelsearch/kestrel/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the kestrel CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kestrel",
		Short: "Hybrid semantic + keyword code search",
		Long: `kestrel indexes a codebase into per-repository vector and BM25
stores and answers queries by fusing semantic similarity, keyword
relevance, and structural signals into a single ranked result list.

Run 'kestrel index <path>' to build an index, then 'kestrel search
<query>' to query it.`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: startLogging,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			stopLogging()
			return nil
		},
	}

	cmd.SetVersionTemplate("kestrel version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to the default log directory")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(cmd *cobra.Command, args []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging() {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// ExitCodeForError maps err onto the CLI's documented exit code. A plain
// error not carrying a structured error code exits 1.
func ExitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	code := kerrors.GetCode(err)
	if code == "" {
		return 1
	}
	return kerrors.CodeExitCode(code)
}
