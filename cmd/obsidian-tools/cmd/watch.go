package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/glibalien/obsidian-tools-sub002/internal/output"
	"github.com/glibalien/obsidian-tools-sub002/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the vault and reindex on changes",
		Long: `Watch runs an initial sync, then monitors the vault for markdown
changes and reindexes after each debounced batch of events. Press
Ctrl-C to stop.`,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := output.New(cmd.OutOrStdout())

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

	debounce, err := time.ParseDuration(a.cfg.Index.WatchDebounce)
	if err != nil {
		debounce = watcher.DefaultDebounceWindow
		slog.Warn("invalid watch_debounce, using default",
			slog.String("value", a.cfg.Index.WatchDebounce),
			slog.Duration("default", debounce))
	}

	out.Printf("Initial sync of %s...", a.vaultRoot)
	summary, err := a.sync.Run(ctx, false)
	if err != nil {
		return err
	}
	out.SyncSummary(summary)

	w, err := watcher.New(watcher.Options{
		DebounceWindow: debounce,
		ExcludeDirs:    a.cfg.Vault.Exclude,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	go func() {
		if err := w.Start(ctx, a.vaultRoot); err != nil {
			slog.Error("watcher stopped", slog.String("error", err.Error()))
			cancel()
		}
	}()

	// Give Start a moment to register before announcing the mode.
	time.Sleep(100 * time.Millisecond)
	out.Printf("Watching %s (%s mode, debounce %s). Ctrl-C to stop.", a.vaultRoot, w.Mode(), debounce)

	for {
		select {
		case <-ctx.Done():
			out.Newline()
			out.Println("Stopping.")
			return nil
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watch error", slog.String("error", err.Error()))
		case batch, ok := <-w.Batches():
			if !ok {
				return nil
			}
			slog.Info("change batch received", slog.Int("events", len(batch)))
			summary, err := a.sync.Run(ctx, false)
			if err != nil {
				out.Errorf("sync failed: %v", err)
				continue
			}
			if summary.Indexed > 0 || summary.Pruned > 0 {
				out.SyncSummary(summary)
			}
		}
	}
}
