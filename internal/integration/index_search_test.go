// Package integration exercises the full pipeline from vault files
// through the synchronizer to search results.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glibalien/obsidian-tools-sub002/internal/chunk"
	"github.com/glibalien/obsidian-tools-sub002/internal/embed"
	"github.com/glibalien/obsidian-tools-sub002/internal/index"
	"github.com/glibalien/obsidian-tools-sub002/internal/manifest"
	"github.com/glibalien/obsidian-tools-sub002/internal/search"
	"github.com/glibalien/obsidian-tools-sub002/internal/store"
)

type stack struct {
	vault    string
	manifest *manifest.Store
	keyword  *store.BleveKeywordIndex
	vector   *store.HNSWStore
	sync     *index.Synchronizer
	engine   *search.Engine
}

func newStack(t *testing.T) *stack {
	t.Helper()

	vault := t.TempDir()
	dataDir := t.TempDir()

	mf, err := manifest.Open(filepath.Join(dataDir, "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mf.Close() })

	kw, err := store.NewBleveKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })

	vec, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embed.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vec.Close() })

	embedder := embed.NewStaticEmbedder()

	return &stack{
		vault:    vault,
		manifest: mf,
		keyword:  kw,
		vector:   vec,
		sync: index.NewSynchronizer(index.SynchronizerConfig{
			VaultRoot: vault,
			Chunker:   chunk.NewMarkdownChunker(),
			Manifest:  mf,
			Keyword:   kw,
			Vector:    vec,
			Embedder:  embedder,
		}),
		engine: search.NewEngine(search.EngineConfig{
			Keyword:  kw,
			Vector:   vec,
			Embedder: embedder,
			Manifest: mf,
		}),
	}
}

func (s *stack) write(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(s.vault, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIndexThenSearch(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	s.write(t, "garden.md", "# Garden\n\n## Tomatoes\n\nStake tomato plants before July.\n")
	s.write(t, "recipes/sauce.md", "# Sauce\n\nSimmer crushed tomatoes with basil.\n")
	s.write(t, "travel.md", "# Vienna\n\nTake the night train from Zurich.\n")

	summary, err := s.sync.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Indexed)
	assert.Empty(t, summary.FailedPaths)

	resp, err := s.engine.Search(ctx, "stake tomato plants", 5, search.ModeHybrid)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "garden.md", resp.Results[0].Path)
	assert.False(t, resp.Degraded)

	// Results carry manifest metadata, not just index hits.
	assert.NotEmpty(t, resp.Results[0].Content)
	assert.NotEmpty(t, resp.Results[0].HeadingPath)
}

func TestIncrementalSyncPicksUpEdits(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	s.write(t, "note.md", "# Note\n\nNothing about databases here.\n")
	_, err := s.sync.Run(ctx, false)
	require.NoError(t, err)

	resp, err := s.engine.Search(ctx, "postgres replication", 5, search.ModeKeyword)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	s.write(t, "note.md", "# Note\n\nSet up postgres replication on the standby.\n")
	summary, err := s.sync.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Indexed)

	resp, err = s.engine.Search(ctx, "postgres replication", 5, search.ModeKeyword)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "note.md", resp.Results[0].Path)
}

func TestSyncSkipsUnchangedNotes(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	s.write(t, "a.md", "# A\n\nalpha content\n")
	s.write(t, "b.md", "# B\n\nbeta content\n")

	first, err := s.sync.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Indexed)

	second, err := s.sync.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Indexed)
	assert.Equal(t, 0, second.Pruned)
}

func TestDeletedNotePrunedFromSearch(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	s.write(t, "keep.md", "# Keep\n\nkubernetes ingress configuration\n")
	s.write(t, "drop.md", "# Drop\n\nkubernetes ingress configuration\n")
	_, err := s.sync.Run(ctx, false)
	require.NoError(t, err)

	resp, err := s.engine.Search(ctx, "kubernetes ingress", 10, search.ModeKeyword)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)

	require.NoError(t, os.Remove(filepath.Join(s.vault, "drop.md")))
	summary, err := s.sync.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pruned)

	resp, err = s.engine.Search(ctx, "kubernetes ingress", 10, search.ModeKeyword)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "keep.md", resp.Results[0].Path)

	// Lazy deletion leaves orphaned graph nodes behind
	stats := s.vector.Stats()
	assert.Greater(t, stats.Orphans, 0)
	assert.Equal(t, stats.GraphNodes, stats.Live+stats.Orphans)
}

func TestConsistencyAfterSync(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	s.write(t, "one.md", "# One\n\nfirst note\n")
	s.write(t, "two.md", "# Two\n\nsecond note\n")
	_, err := s.sync.Run(ctx, false)
	require.NoError(t, err)

	checker := index.NewConsistencyChecker(s.manifest, s.keyword, s.vector)
	result, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Inconsistencies)
	assert.Greater(t, result.Checked, 0)
}
