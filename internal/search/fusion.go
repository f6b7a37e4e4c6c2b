// Package search provides hybrid retrieval over the keyword and
// vector indexes, fused with Reciprocal Rank Fusion (RRF).
package search

import (
	"sort"

	"github.com/glibalien/obsidian-tools-sub002/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains.
const DefaultRRFConstant = 60

// Weights are the per-source multipliers applied during fusion.
type Weights struct {
	Keyword  float64
	Semantic float64
}

// DefaultWeights splits the two sources evenly.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.5, Semantic: 0.5}
}

// FusedResult is a single result after RRF fusion.
type FusedResult struct {
	ChunkID       string
	Score         float64  // combined RRF score
	KeywordRank   int      // 1-indexed, 0 if absent from keyword list
	SemanticRank  int      // 1-indexed, 0 if absent from semantic list
	SemanticScore float64  // original similarity score
	MatchedTerms  []string // keyword terms that matched, for highlighting
}

// RRFFusion combines keyword and semantic rankings.
//
// score(d) = Σ weight_m / (rank_m + k) over the lists d appears in.
// A chunk absent from a list simply gets no contribution from it, so
// appearing in both lists always beats an equal single-list rank.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion instance. k <= 0 defaults to 60.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse merges the two ranked lists. Results are ordered by fused
// score descending, with ties broken by chunk ID ascending so equal
// queries always return identical orderings.
func (f *RRFFusion) Fuse(keyword []*store.KeywordResult, semantic []*store.VectorResult, weights Weights) []*FusedResult {
	if len(keyword) == 0 && len(semantic) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[string]*FusedResult, len(keyword)+len(semantic))

	for rank, r := range keyword {
		result := f.getOrCreate(scores, r.ChunkID)
		result.KeywordRank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		result.Score += weights.Keyword / float64(rank+1+f.K)
	}

	for rank, r := range semantic {
		result := f.getOrCreate(scores, r.ID)
		result.SemanticRank = rank + 1
		result.SemanticScore = float64(r.Score)
		result.Score += weights.Semantic / float64(rank+1+f.K)
	}

	results := make([]*FusedResult, 0, len(scores))
	for _, r := range scores {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results
}

func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id}
	m[id] = r
	return r
}
