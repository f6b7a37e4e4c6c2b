package manifest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEntry(path string) *Entry {
	return &Entry{
		Path:        path,
		Fingerprint: "ab12cd34",
		IndexedAt:   time.Now().UTC().Truncate(time.Second),
		Chunks: []ChunkRef{
			{ChunkID: path + "-c0", Position: 0, Type: "heading", HeadingPath: "Notes", Content: "# Notes"},
			{ChunkID: path + "-c1", Position: 1, Type: "paragraph", HeadingPath: "Notes", Content: "First paragraph."},
		},
	}
}

func TestStorePutAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := sampleEntry("garden.md")
	require.NoError(t, s.Put(ctx, entry))

	got, err := s.Get(ctx, "garden.md")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Fingerprint, got.Fingerprint)
	require.Len(t, got.Chunks, 2)
	assert.Equal(t, "garden.md-c0", got.Chunks[0].ChunkID)
	assert.Equal(t, "heading", got.Chunks[0].Type)
	assert.Equal(t, "First paragraph.", got.Chunks[1].Content)
}

func TestStoreGetMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get(context.Background(), "missing.md")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStorePutReplacesChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, sampleEntry("note.md")))

	updated := &Entry{
		Path:        "note.md",
		Fingerprint: "ff99ee88",
		IndexedAt:   time.Now().UTC(),
		Chunks: []ChunkRef{
			{ChunkID: "note.md-new", Position: 0, Type: "paragraph", Content: "Rewritten."},
		},
	}
	require.NoError(t, s.Put(ctx, updated))

	got, err := s.Get(ctx, "note.md")
	require.NoError(t, err)
	assert.Equal(t, "ff99ee88", got.Fingerprint)
	require.Len(t, got.Chunks, 1)
	assert.Equal(t, "note.md-new", got.Chunks[0].ChunkID)

	ids, err := s.ChunkIDs(ctx, "note.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"note.md-new"}, ids)
}

func TestStoreRemoveCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, sampleEntry("a.md")))
	require.NoError(t, s.Put(ctx, sampleEntry("b.md")))

	require.NoError(t, s.Remove(ctx, "a.md"))

	got, err := s.Get(ctx, "a.md")
	require.NoError(t, err)
	assert.Nil(t, got)

	ids, err := s.ChunkIDs(ctx, "a.md")
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Other documents untouched
	paths, err := s.AllPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.md"}, paths)

	// Removing again is a no-op
	require.NoError(t, s.Remove(ctx, "a.md"))
}

func TestStoreFingerprints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e1 := sampleEntry("a.md")
	e2 := sampleEntry("b.md")
	e2.Fingerprint = "deadbeef"
	require.NoError(t, s.Put(ctx, e1))
	require.NoError(t, s.Put(ctx, e2))

	fps, err := s.Fingerprints(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"a.md": "ab12cd34",
		"b.md": "deadbeef",
	}, fps)
}

func TestStoreGetChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, sampleEntry("a.md")))

	chunks, err := s.GetChunks(ctx, []string{"a.md-c0", "a.md-c1", "unknown"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a.md", chunks["a.md-c0"].Path)
	assert.Equal(t, "First paragraph.", chunks["a.md-c1"].Content)
	assert.NotContains(t, chunks, "unknown")
}

func TestStoreState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	val, err := s.GetState(ctx, StateKeyWatermark)
	require.NoError(t, err)
	assert.Equal(t, "", val)

	require.NoError(t, s.SetState(ctx, StateKeyWatermark, "2026-08-29T10:00:00Z"))
	require.NoError(t, s.SetState(ctx, StateKeyWatermark, "2026-08-29T11:00:00Z"))

	val, err = s.GetState(ctx, StateKeyWatermark)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-29T11:00:00Z", val)
}

func TestStoreStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, sampleEntry("a.md")))
	require.NoError(t, s.Put(ctx, sampleEntry("b.md")))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Documents)
	assert.Equal(t, 4, st.Chunks)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, sampleEntry("persist.md")))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "persist.md")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Chunks, 2)
}
