package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeywordIndex(t *testing.T) *BleveKeywordIndex {
	t.Helper()
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func indexDocs(t *testing.T, idx *BleveKeywordIndex, docs map[string]string) {
	t.Helper()
	batch := make([]*Document, 0, len(docs))
	for id, content := range docs {
		batch = append(batch, &Document{ID: id, Content: content})
	}
	require.NoError(t, idx.Index(context.Background(), batch))
}

func TestKeywordIndexSearchRanksByDistinctTerms(t *testing.T) {
	idx := newTestKeywordIndex(t)

	indexDocs(t, idx, map[string]string{
		"chunk-a": "compost bin maintenance schedule",
		"chunk-b": "compost and soil amendments for raised beds",
		"chunk-c": "soil temperature readings",
	})

	results, err := idx.Search(context.Background(), "compost soil", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// chunk-b matches both terms, the others match one each
	assert.Equal(t, "chunk-b", results[0].ChunkID)
	assert.Equal(t, 2, results[0].TermCount)
	assert.ElementsMatch(t, []string{"compost", "soil"}, results[0].MatchedTerms)

	assert.Equal(t, 1, results[1].TermCount)
	assert.Equal(t, 1, results[2].TermCount)
}

func TestKeywordIndexTiesBreakByChunkID(t *testing.T) {
	idx := newTestKeywordIndex(t)

	indexDocs(t, idx, map[string]string{
		"chunk-z": "pruning the apple tree",
		"chunk-a": "pruning the pear tree",
		"chunk-m": "pruning the plum tree",
	})

	results, err := idx.Search(context.Background(), "pruning", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// All three match the same single term, so order is lexicographic by ID
	assert.Equal(t, "chunk-a", results[0].ChunkID)
	assert.Equal(t, "chunk-m", results[1].ChunkID)
	assert.Equal(t, "chunk-z", results[2].ChunkID)
}

func TestKeywordIndexLimit(t *testing.T) {
	idx := newTestKeywordIndex(t)

	indexDocs(t, idx, map[string]string{
		"chunk-1": "watering schedule",
		"chunk-2": "watering cans",
		"chunk-3": "watering depth",
	})

	results, err := idx.Search(context.Background(), "watering", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestKeywordIndexNoMatches(t *testing.T) {
	idx := newTestKeywordIndex(t)

	indexDocs(t, idx, map[string]string{
		"chunk-1": "greenhouse ventilation",
	})

	results, err := idx.Search(context.Background(), "submarine", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestKeywordIndexDelete(t *testing.T) {
	idx := newTestKeywordIndex(t)

	indexDocs(t, idx, map[string]string{
		"chunk-1": "mulching strategy",
		"chunk-2": "mulching materials",
	})

	require.NoError(t, idx.Delete(context.Background(), []string{"chunk-1"}))

	results, err := idx.Search(context.Background(), "mulching", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk-2", results[0].ChunkID)

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestKeywordIndexAllIDs(t *testing.T) {
	idx := newTestKeywordIndex(t)

	indexDocs(t, idx, map[string]string{
		"chunk-1": "first note",
		"chunk-2": "second note",
		"chunk-3": "third note",
	})

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chunk-1", "chunk-2", "chunk-3"}, ids)
}

func TestKeywordIndexPersistence(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/keyword.bleve"

	idx, err := NewBleveKeywordIndex(path)
	require.NoError(t, err)

	indexDocs(t, idx, map[string]string{
		"chunk-1": "persistent seedlings",
	})
	require.NoError(t, idx.Close())

	reopened, err := NewBleveKeywordIndex(path)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search(context.Background(), "seedlings", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chunk-1", results[0].ChunkID)
}

func TestOverFetch(t *testing.T) {
	assert.Equal(t, 100, overFetch(10))
	assert.Equal(t, 1000, overFetch(500))
	assert.Equal(t, 100, overFetch(0))
}
