package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glibalien/obsidian-tools-sub002/internal/store"
)

func keywordHits(ids ...string) []*store.KeywordResult {
	hits := make([]*store.KeywordResult, len(ids))
	for i, id := range ids {
		hits[i] = &store.KeywordResult{ChunkID: id, TermCount: len(ids) - i}
	}
	return hits
}

func semanticHits(ids ...string) []*store.VectorResult {
	hits := make([]*store.VectorResult, len(ids))
	for i, id := range ids {
		hits[i] = &store.VectorResult{ID: id, Score: 1.0 - float32(i)*0.1}
	}
	return hits
}

func TestFuseBothListsBeatsSingleList(t *testing.T) {
	f := NewRRFFusion(60)

	// "both" appears at keyword rank 1 and semantic rank 3:
	// 0.5/61 + 0.5/63. "solo" appears only at semantic rank 1:
	// 0.5/61. The doc in both lists must win.
	kw := keywordHits("both")
	sem := semanticHits("solo", "other", "both")

	fused := f.Fuse(kw, sem, DefaultWeights())
	require.Len(t, fused, 3)

	assert.Equal(t, "both", fused[0].ChunkID)
	assert.Equal(t, "solo", fused[1].ChunkID)

	expected := 0.5/61.0 + 0.5/63.0
	assert.InDelta(t, expected, fused[0].Score, 1e-12)
	assert.InDelta(t, 0.5/61.0, fused[1].Score, 1e-12)
}

func TestFuseRanksRecorded(t *testing.T) {
	f := NewRRFFusion(60)

	fused := f.Fuse(keywordHits("a", "b"), semanticHits("b", "a"), DefaultWeights())
	require.Len(t, fused, 2)

	byID := map[string]*FusedResult{}
	for _, fr := range fused {
		byID[fr.ChunkID] = fr
	}
	assert.Equal(t, 1, byID["a"].KeywordRank)
	assert.Equal(t, 2, byID["a"].SemanticRank)
	assert.Equal(t, 2, byID["b"].KeywordRank)
	assert.Equal(t, 1, byID["b"].SemanticRank)
}

func TestFuseEqualScoresTieBreakByChunkID(t *testing.T) {
	f := NewRRFFusion(60)

	// zeta at keyword rank 1, alpha at semantic rank 1: identical
	// scores, so alpha wins on chunk id.
	fused := f.Fuse(keywordHits("zeta"), semanticHits("alpha"), DefaultWeights())
	require.Len(t, fused, 2)
	assert.InDelta(t, fused[0].Score, fused[1].Score, 1e-12)
	assert.Equal(t, "alpha", fused[0].ChunkID)
	assert.Equal(t, "zeta", fused[1].ChunkID)
}

func TestFuseNoContributionFromAbsentList(t *testing.T) {
	f := NewRRFFusion(60)

	fused := f.Fuse(keywordHits("only-kw"), nil, DefaultWeights())
	require.Len(t, fused, 1)
	assert.InDelta(t, 0.5/61.0, fused[0].Score, 1e-12)
	assert.Equal(t, 0, fused[0].SemanticRank)
}

func TestFuseWeights(t *testing.T) {
	f := NewRRFFusion(60)

	w := Weights{Keyword: 0.8, Semantic: 0.2}
	fused := f.Fuse(keywordHits("kw"), semanticHits("sem"), w)
	require.Len(t, fused, 2)
	assert.Equal(t, "kw", fused[0].ChunkID)
	assert.InDelta(t, 0.8/61.0, fused[0].Score, 1e-12)
	assert.InDelta(t, 0.2/61.0, fused[1].Score, 1e-12)
}

func TestFuseEmptyInputs(t *testing.T) {
	f := NewRRFFusion(60)
	fused := f.Fuse(nil, nil, DefaultWeights())
	assert.Empty(t, fused)
}

func TestFuseDeterministic(t *testing.T) {
	f := NewRRFFusion(60)
	kw := keywordHits("c", "a", "b")
	sem := semanticHits("b", "d", "a")

	first := f.Fuse(kw, sem, DefaultWeights())
	for range 10 {
		again := f.Fuse(kw, sem, DefaultWeights())
		require.Len(t, again, len(first))
		for i := range first {
			assert.Equal(t, first[i].ChunkID, again[i].ChunkID)
			assert.Equal(t, first[i].Score, again[i].Score)
		}
	}
}

func TestFuseDefaultConstant(t *testing.T) {
	f := NewRRFFusion(0)
	assert.Equal(t, DefaultRRFConstant, f.K)
}

func TestFuseCarriesMatchedTerms(t *testing.T) {
	f := NewRRFFusion(60)
	kw := []*store.KeywordResult{
		{ChunkID: "a", TermCount: 2, MatchedTerms: []string{"alpha", "beta"}},
	}
	fused := f.Fuse(kw, nil, DefaultWeights())
	require.Len(t, fused, 1)
	assert.Equal(t, []string{"alpha", "beta"}, fused[0].MatchedTerms)
}
