package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/glibalien/obsidian-tools-sub002/internal/index"
	"github.com/glibalien/obsidian-tools-sub002/internal/output"
)

func newCheckCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify manifest, keyword index, and vector store agree",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, repair)
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Remove orphans and reindex inconsistent documents")
	return cmd
}

func runCheck(cmd *cobra.Command, repair bool) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := output.New(cmd.OutOrStdout())

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	checker := index.NewConsistencyChecker(a.manifest, a.keyword, a.vector)
	result, err := checker.Check(ctx)
	if err != nil {
		return err
	}
	out.ConsistencyReport(result)

	if !repair || len(result.Inconsistencies) == 0 {
		return nil
	}

	lock, err := a.lock(ctx, 5*time.Second)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	paths, err := checker.Repair(ctx, result.Inconsistencies)
	if err != nil {
		return err
	}
	if len(paths) > 0 {
		out.Printf("Reindexing %d repaired document(s)...\n", len(paths))
		summary, err := a.sync.Run(ctx, false)
		if err != nil {
			return err
		}
		out.SyncSummary(summary)
	} else {
		out.Success("Orphan entries removed.")
	}
	return repairVerify(ctx, out, checker)
}

// repairVerify reruns the check after a repair so the user sees the
// final state rather than the pre-repair report.
func repairVerify(ctx context.Context, out *output.Writer, checker *index.ConsistencyChecker) error {
	result, err := checker.Check(ctx)
	if err != nil {
		return err
	}
	if len(result.Inconsistencies) > 0 {
		out.Warningf("%d inconsistencies remain after repair", len(result.Inconsistencies))
		return nil
	}
	out.Success("Stores are consistent.")
	return nil
}
