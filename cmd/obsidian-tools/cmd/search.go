package cmd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glibalien/obsidian-tools-sub002/internal/output"
	"github.com/glibalien/obsidian-tools-sub002/internal/search"
)

type searchOptions struct {
	limit  int
	mode   string
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed vault",
		Long: `Search the vault's notes with hybrid retrieval: keyword matching and
semantic similarity fused with Reciprocal Rank Fusion.

Examples:
  obsidian-tools search "tomato staking"
  obsidian-tools search "meeting notes" --mode keyword --limit 5
  obsidian-tools search "travel plans" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Retrieval mode: hybrid, semantic, keyword")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	mode, err := search.ParseMode(opts.mode)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	limit := opts.limit
	if max := a.cfg.Search.MaxResults; max > 0 && limit > max {
		limit = max
	}

	resp, err := a.engine.Search(ctx, query, limit, mode)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out.SearchResults(query, resp)
	return nil
}
