package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/glibalien/obsidian-tools-sub002/internal/output"
	"github.com/glibalien/obsidian-tools-sub002/internal/profiling"
)

type indexOptions struct {
	full        bool
	cpuProfile  string
	heapProfile string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Synchronize the index with the vault",
		Long: `Scan the vault, index new and changed notes, and prune deleted ones.
Unchanged notes are skipped via content fingerprints.

Examples:
  obsidian-tools index
  obsidian-tools index --full`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.full, "full", false, "Reindex every note, ignoring fingerprints")
	cmd.Flags().StringVar(&opts.cpuProfile, "cpuprofile", "", "Write a CPU profile to this file")
	cmd.Flags().StringVar(&opts.heapProfile, "heapprofile", "", "Write a heap profile to this file after indexing")
	_ = cmd.Flags().MarkHidden("cpuprofile")
	_ = cmd.Flags().MarkHidden("heapprofile")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	out := output.New(cmd.OutOrStdout())

	if opts.cpuProfile != "" {
		stop, err := profiling.StartCPU(opts.cpuProfile)
		if err != nil {
			return err
		}
		defer stop()
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	lock, err := a.lock(ctx, 5*time.Second)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	out.Printf("Indexing %s (embedder: %s)", a.vaultRoot, a.embedder.ModelName())

	summary, err := a.sync.Run(ctx, opts.full)
	if err != nil {
		return err
	}

	out.SyncSummary(summary)

	if opts.heapProfile != "" {
		if err := profiling.WriteHeap(opts.heapProfile); err != nil {
			out.Warningf("heap profile failed: %v", err)
		}
	}
	return nil
}
