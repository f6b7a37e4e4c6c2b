package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsistencyCheckCleanIndex(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	f.write(t, "note.md", "# Note\n\nHealthy content.\n")
	_, err := f.sync.Run(ctx, false)
	require.NoError(t, err)

	checker := NewConsistencyChecker(f.manifest, f.keyword, f.vector)
	result, err := checker.Check(ctx)
	require.NoError(t, err)

	assert.Empty(t, result.Inconsistencies)
	assert.Greater(t, result.Checked, 0)
}

func TestConsistencyDetectsMissingVector(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	f.write(t, "note.md", "# Note\n\nSome content here.\n")
	_, err := f.sync.Run(ctx, false)
	require.NoError(t, err)

	// Corrupt the vector store by dropping one chunk
	ids, err := f.manifest.ChunkIDs(ctx, "note.md")
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	require.NoError(t, f.vector.Delete(ctx, ids[:1]))

	checker := NewConsistencyChecker(f.manifest, f.keyword, f.vector)
	result, err := checker.Check(ctx)
	require.NoError(t, err)

	require.Len(t, result.Inconsistencies, 1)
	issue := result.Inconsistencies[0]
	assert.Equal(t, InconsistencyMissingVector, issue.Type)
	assert.Equal(t, ids[0], issue.ChunkID)
	assert.Equal(t, "note.md", issue.Path)
}

func TestConsistencyDetectsOrphans(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	f.write(t, "note.md", "# Note\n\nTracked content.\n")
	_, err := f.sync.Run(ctx, false)
	require.NoError(t, err)

	// Plant an orphan vector the manifest knows nothing about
	orphanVec := make([]float32, 256)
	orphanVec[0] = 1
	require.NoError(t, f.vector.Add(ctx, []string{"orphan-chunk"}, [][]float32{orphanVec}))

	checker := NewConsistencyChecker(f.manifest, f.keyword, f.vector)
	result, err := checker.Check(ctx)
	require.NoError(t, err)

	require.Len(t, result.Inconsistencies, 1)
	assert.Equal(t, InconsistencyOrphanVector, result.Inconsistencies[0].Type)
	assert.Equal(t, "orphan-chunk", result.Inconsistencies[0].ChunkID)
}

func TestConsistencyRepairThenResync(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	f.write(t, "broken.md", "# Broken\n\nNeeds repair.\n")
	f.write(t, "fine.md", "# Fine\n\nNothing wrong.\n")
	_, err := f.sync.Run(ctx, false)
	require.NoError(t, err)

	ids, err := f.manifest.ChunkIDs(ctx, "broken.md")
	require.NoError(t, err)
	require.NoError(t, f.vector.Delete(ctx, ids[:1]))

	orphanVec := make([]float32, 256)
	orphanVec[0] = 1
	require.NoError(t, f.vector.Add(ctx, []string{"orphan-chunk"}, [][]float32{orphanVec}))

	checker := NewConsistencyChecker(f.manifest, f.keyword, f.vector)
	result, err := checker.Check(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, result.Inconsistencies)

	paths, err := checker.Repair(ctx, result.Inconsistencies)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken.md"}, paths)
	assert.False(t, f.vector.Contains("orphan-chunk"))

	// The next incremental run reindexes the repaired document
	summary, err := f.sync.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Indexed)

	after, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, after.Inconsistencies)
}

func TestFileLock(t *testing.T) {
	dir := t.TempDir()

	l1 := NewFileLock(dir)
	require.NoError(t, l1.Lock())
	assert.Equal(t, filepath.Join(dir, ".index.lock"), l1.Path())

	l2 := NewFileLock(dir)
	acquired, err := l2.TryLock()
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, l1.Unlock())

	acquired, err = l2.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, l2.Unlock())

	// Unlock on an unlocked lock is a no-op
	require.NoError(t, l1.Unlock())

	_, err = os.Stat(l1.Path())
	assert.NoError(t, err)
}
