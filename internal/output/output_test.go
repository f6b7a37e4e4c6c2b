package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/glibalien/obsidian-tools-sub002/internal/index"
	"github.com/glibalien/obsidian-tools-sub002/internal/search"
)

func TestStatusLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithColor(&buf, false)

	w.Success("indexed")
	w.Warning("slow provider")
	w.Error("store down")
	w.Dim("details")

	out := buf.String()
	assert.Contains(t, out, "✓ indexed")
	assert.Contains(t, out, "! slow provider")
	assert.Contains(t, out, "✗ store down")
	assert.Contains(t, out, "details")
}

func TestBufferGetsNoColor(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	w.Success("done")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestSearchResultsRendering(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithColor(&buf, false)

	w.SearchResults("tomato", &search.Response{
		Mode: search.ModeHybrid,
		Results: []*search.Result{
			{
				ChunkID:      "abc",
				Path:         "garden.md",
				HeadingPath:  "Garden > Tomatoes",
				Content:      "Tomato seedlings need staking.",
				Score:        0.0123,
				MatchedTerms: []string{"tomato"},
			},
		},
		Duration: 12 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "garden.md")
	assert.Contains(t, out, "Garden > Tomatoes")
	assert.Contains(t, out, "Tomato seedlings need staking.")
	assert.Contains(t, out, "matched: tomato")
}

func TestSearchResultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithColor(&buf, false)

	w.SearchResults("nothing", &search.Response{Mode: search.ModeKeyword})
	assert.Contains(t, buf.String(), `No results for "nothing".`)
}

func TestSearchResultsDegraded(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithColor(&buf, false)

	w.SearchResults("q", &search.Response{
		Mode:           search.ModeHybrid,
		Degraded:       true,
		DegradedReason: "semantic source unavailable",
	})
	assert.Contains(t, buf.String(), "semantic source unavailable")
}

func TestSyncSummaryRendering(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithColor(&buf, false)

	w.SyncSummary(&index.Summary{
		Indexed:     3,
		Pruned:      1,
		FailedPaths: []string{"broken.md"},
		Duration:    250 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "indexed 3, pruned 1")
	assert.Contains(t, out, "broken.md")
}

func TestConsistencyReportClean(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithColor(&buf, false)

	w.ConsistencyReport(&index.CheckResult{Checked: 42})
	assert.Contains(t, buf.String(), "index consistent: 42 chunks")
}

func TestSnippetTruncation(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithColor(&buf, false)

	w.Snippet("l1\nl2\nl3\nl4\nl5", 2)
	out := buf.String()
	assert.Contains(t, out, "l1")
	assert.Contains(t, out, "l2")
	assert.NotContains(t, out, "l3")
	assert.Contains(t, out, "…")
}
