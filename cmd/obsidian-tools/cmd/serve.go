package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glibalien/obsidian-tools-sub002/internal/config"
	"github.com/glibalien/obsidian-tools-sub002/internal/logging"
	"github.com/glibalien/obsidian-tools-sub002/internal/mcp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Serve exposes search, reindex, and vault_status as MCP tools over
stdio for use by AI assistants. All logging goes to a file; stdout is
reserved for the protocol.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	vaultRoot, err := resolveVaultRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load(vaultRoot)
	if err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if flagDebug {
		level = "debug"
	}

	// stdout carries JSON-RPC frames; anything written there by the
	// default logger would corrupt the stream.
	cleanup, err := logging.SetupMCPMode(level)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	server, err := mcp.NewServer(mcp.Config{
		Engine:       a.engine,
		Synchronizer: a.sync,
		Manifest:     a.manifest,
		Embedder:     a.embedder,
		VaultRoot:    a.vaultRoot,
		Logger:       slog.Default(),
	})
	if err != nil {
		return err
	}

	return server.Serve(ctx)
}
