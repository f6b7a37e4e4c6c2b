package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/glibalien/obsidian-tools-sub002/internal/manifest"
	"github.com/glibalien/obsidian-tools-sub002/internal/output"
)

type vaultStatus struct {
	VaultRoot    string `json:"vault_root"`
	DataDir      string `json:"data_dir"`
	Documents    int    `json:"documents"`
	Chunks       int    `json:"chunks"`
	Vectors      int    `json:"vectors"`
	Orphans      int    `json:"orphans"`
	LastSyncedAt string `json:"last_synced_at,omitempty"`
	Embedder     string `json:"embedder"`
	Model        string `json:"model,omitempty"`
	Dimensions   int    `json:"dimensions"`
}

func newStatusCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index freshness and store statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, format string) error {
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.manifest.Stats(ctx)
	if err != nil {
		return err
	}

	watermark, err := a.manifest.GetState(ctx, manifest.StateKeyWatermark)
	if err != nil {
		return err
	}
	model, err := a.manifest.GetState(ctx, manifest.StateKeyModel)
	if err != nil {
		return err
	}
	dimsStr, err := a.manifest.GetState(ctx, manifest.StateKeyDimensions)
	if err != nil {
		return err
	}
	dims, _ := strconv.Atoi(dimsStr)

	vstats := a.vector.Stats()

	status := vaultStatus{
		VaultRoot:    a.vaultRoot,
		DataDir:      a.dataDir,
		Documents:    stats.Documents,
		Chunks:       stats.Chunks,
		Vectors:      vstats.Live,
		Orphans:      vstats.Orphans,
		LastSyncedAt: watermark,
		Embedder:     a.embedder.ModelName(),
		Model:        model,
		Dimensions:   dims,
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	out.Header("Vault")
	out.KV("root", status.VaultRoot)
	out.KV("data dir", status.DataDir)
	out.Newline()

	out.Header("Index")
	out.KV("documents", strconv.Itoa(status.Documents))
	out.KV("chunks", strconv.Itoa(status.Chunks))
	out.KV("vectors", strconv.Itoa(status.Vectors))
	if status.Orphans > 0 {
		out.KV("orphans", strconv.Itoa(status.Orphans))
	}
	if status.LastSyncedAt != "" {
		out.KV("last synced", status.LastSyncedAt)
	} else {
		out.KV("last synced", "never (run 'obsidian-tools index')")
	}
	out.Newline()

	out.Header("Embeddings")
	out.KV("embedder", status.Embedder)
	if status.Model != "" && status.Model != status.Embedder {
		out.KV("indexed with", status.Model)
	}
	if status.Dimensions > 0 {
		out.KV("dimensions", fmt.Sprintf("%d", status.Dimensions))
	}
	return nil
}
