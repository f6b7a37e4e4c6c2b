package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/glibalien/obsidian-tools-sub002/internal/index"
	"github.com/glibalien/obsidian-tools-sub002/internal/search"
)

// SearchResults renders a search response.
func (w *Writer) SearchResults(query string, resp *search.Response) {
	if resp.Degraded {
		w.Warningf("degraded results: %s", resp.DegradedReason)
	}

	if len(resp.Results) == 0 {
		w.Dim(fmt.Sprintf("No results for %q.", query))
		return
	}

	w.Printf("%d results for %s (%s, %s)",
		len(resp.Results),
		w.styles.Header.Render(fmt.Sprintf("%q", query)),
		resp.Mode,
		resp.Duration.Round(fmtDuration))
	w.Newline()

	for i, r := range resp.Results {
		location := r.Path
		if r.HeadingPath != "" {
			location += w.styles.Dim.Render(" › " + r.HeadingPath)
		}
		w.Printf("%2d. %s %s",
			i+1,
			w.styles.Path.Render(location),
			w.styles.Score.Render(fmt.Sprintf("(%.4f)", r.Score)))

		if len(r.MatchedTerms) > 0 {
			w.Printf("    %s", w.styles.Dim.Render("matched: "+strings.Join(r.MatchedTerms, ", ")))
		}
		w.Snippet(r.Content, 4)
		w.Newline()
	}
}

// SyncSummary renders the outcome of an index run.
func (w *Writer) SyncSummary(summary *index.Summary) {
	w.Successf("indexed %d, pruned %d in %s",
		summary.Indexed, summary.Pruned, summary.Duration.Round(fmtDuration))

	if len(summary.FailedPaths) > 0 {
		w.Warningf("%d notes failed:", len(summary.FailedPaths))
		for _, path := range summary.FailedPaths {
			w.Printf("    %s", path)
		}
	}
}

// ConsistencyReport renders an index consistency check.
func (w *Writer) ConsistencyReport(result *index.CheckResult) {
	if len(result.Inconsistencies) == 0 {
		w.Successf("index consistent: %d chunks checked in %s",
			result.Checked, result.Duration.Round(fmtDuration))
		return
	}

	w.Warningf("%d inconsistencies in %d chunks:", len(result.Inconsistencies), result.Checked)
	for _, inc := range result.Inconsistencies {
		line := fmt.Sprintf("    %s  %s", inc.Type, inc.ChunkID)
		if inc.Path != "" {
			line += "  (" + inc.Path + ")"
		}
		w.Println(line)
	}
}

const fmtDuration = time.Millisecond
