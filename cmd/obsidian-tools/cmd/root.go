// Package cmd provides the CLI commands for obsidian-tools.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/glibalien/obsidian-tools-sub002/internal/logging"
	"github.com/glibalien/obsidian-tools-sub002/pkg/version"
)

var (
	flagVault string
	flagDebug bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the obsidian-tools CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "obsidian-tools",
		Short: "Hybrid search over an Obsidian vault",
		Long: `obsidian-tools indexes the markdown notes of an Obsidian vault and
searches them with hybrid retrieval: keyword matching fused with
semantic similarity.

Run 'obsidian-tools index' once, then 'obsidian-tools search <query>'.
'obsidian-tools serve' exposes the same search over MCP for AI clients.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("obsidian-tools version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagVault, "vault", "", "Vault root directory (default: auto-detect from cwd)")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging to ~/.obsidian-tools/logs/")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging routes slog output to the rotating log file. CLI
// commands keep stderr quiet unless --debug is set.
func setupLogging(cmd *cobra.Command, _ []string) error {
	// serve configures MCP-safe logging itself
	if cmd.Name() == "serve" {
		return nil
	}

	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = flagDebug
	if flagDebug {
		cfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
