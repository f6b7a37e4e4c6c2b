package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glibalien/obsidian-tools-sub002/internal/embed"
	"github.com/glibalien/obsidian-tools-sub002/internal/errors"
	"github.com/glibalien/obsidian-tools-sub002/internal/manifest"
	"github.com/glibalien/obsidian-tools-sub002/internal/store"
)

// Mode selects which retrieval sources a query uses.
type Mode string

const (
	// ModeHybrid fuses keyword and semantic rankings (default).
	ModeHybrid Mode = "hybrid"
	// ModeSemantic uses only the vector index.
	ModeSemantic Mode = "semantic"
	// ModeKeyword uses only the keyword index.
	ModeKeyword Mode = "keyword"
)

// ParseMode validates a mode string. Empty means hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeHybrid:
		return ModeHybrid, nil
	case ModeSemantic:
		return ModeSemantic, nil
	case ModeKeyword:
		return ModeKeyword, nil
	default:
		return "", errors.ValidationError(fmt.Sprintf("unknown search mode %q", s), nil)
	}
}

// DefaultOversample is how many times the requested result count each
// sub-query fetches, giving the fusion step enough overlap to work with.
const DefaultOversample = 2

// DefaultLimit is the result count used when the caller passes none.
const DefaultLimit = 10

// Result is a search hit enriched with its manifest chunk.
type Result struct {
	ChunkID      string   `json:"chunk_id"`
	Path         string   `json:"path"`
	HeadingPath  string   `json:"heading_path,omitempty"`
	ChunkType    string   `json:"chunk_type"`
	Content      string   `json:"content"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// Response carries the hits plus how the query was actually served.
type Response struct {
	Results []*Result `json:"results"`

	// Mode is the requested mode.
	Mode Mode `json:"mode"`

	// Degraded is set when a source failed and the query was served
	// from the surviving source alone.
	Degraded bool `json:"degraded,omitempty"`

	// DegradedReason explains the degradation when set.
	DegradedReason string `json:"degraded_reason,omitempty"`

	// Duration is the total query time.
	Duration time.Duration `json:"-"`
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Keyword  store.KeywordIndex
	Vector   store.VectorStore
	Embedder embed.Embedder
	Manifest *manifest.Store

	// Weights for hybrid fusion. Zero value means DefaultWeights.
	Weights Weights

	// RRFConstant is the fusion smoothing constant (0 = 60).
	RRFConstant int

	// Oversample multiplies the requested limit for each sub-query
	// (0 = 2).
	Oversample int
}

// Engine executes search queries across the keyword and vector
// indexes.
type Engine struct {
	config EngineConfig
	fusion *RRFFusion
}

// NewEngine creates a search engine.
func NewEngine(config EngineConfig) *Engine {
	if config.Weights == (Weights{}) {
		config.Weights = DefaultWeights()
	}
	if config.Oversample <= 0 {
		config.Oversample = DefaultOversample
	}
	return &Engine{
		config: config,
		fusion: NewRRFFusion(config.RRFConstant),
	}
}

// Search runs a query in the given mode. A query matching nothing
// returns an empty result list, not an error. In hybrid mode the
// failure of one source degrades the query to the surviving source;
// only both sources failing is an error.
func (e *Engine) Search(ctx context.Context, query string, limit int, mode Mode) (*Response, error) {
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return nil, errors.New(errors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	resp := &Response{Mode: mode}
	fetch := limit * e.config.Oversample

	switch mode {
	case ModeKeyword:
		hits, err := e.keywordSearch(ctx, query, fetch)
		if err != nil {
			return nil, err
		}
		resp.Results = e.fromKeyword(hits)

	case ModeSemantic:
		hits, err := e.semanticSearch(ctx, query, fetch)
		if err != nil {
			return nil, err
		}
		resp.Results = e.fromSemantic(hits)

	case ModeHybrid:
		if err := e.hybridSearch(ctx, query, fetch, resp); err != nil {
			return nil, err
		}

	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown search mode %q", mode), nil)
	}

	// Enrichment can drop hits whose manifest record is gone, so the
	// oversampled pool is cut down to limit only afterwards.
	enriched, err := e.enrich(ctx, resp.Results)
	if err != nil {
		return nil, err
	}
	if len(enriched) > limit {
		enriched = enriched[:limit]
	}
	resp.Results = enriched

	resp.Duration = time.Since(start)
	return resp, nil
}

// hybridSearch runs both sub-queries in parallel and fuses them. Each
// sub-query's error is captured rather than cancelling the other.
func (e *Engine) hybridSearch(ctx context.Context, query string, fetch int, resp *Response) error {
	var (
		keywordHits  []*store.KeywordResult
		semanticHits []*store.VectorResult
		keywordErr   error
		semanticErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keywordHits, keywordErr = e.keywordSearch(gctx, query, fetch)
		return nil
	})
	g.Go(func() error {
		semanticHits, semanticErr = e.semanticSearch(gctx, query, fetch)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	switch {
	case keywordErr != nil && semanticErr != nil:
		return errors.New(errors.ErrCodeSearchFailed,
			fmt.Sprintf("both sources failed: keyword: %v; semantic: %v", keywordErr, semanticErr), keywordErr)

	case semanticErr != nil:
		slog.Warn("semantic search failed, serving keyword-only",
			slog.String("error", semanticErr.Error()))
		resp.Degraded = true
		resp.DegradedReason = "semantic source unavailable"
		resp.Results = e.fromKeyword(keywordHits)
		return nil

	case keywordErr != nil:
		slog.Warn("keyword search failed, serving semantic-only",
			slog.String("error", keywordErr.Error()))
		resp.Degraded = true
		resp.DegradedReason = "keyword source unavailable"
		resp.Results = e.fromSemantic(semanticHits)
		return nil
	}

	fused := e.fusion.Fuse(keywordHits, semanticHits, e.config.Weights)

	results := make([]*Result, len(fused))
	for i, fr := range fused {
		results[i] = &Result{
			ChunkID:      fr.ChunkID,
			Score:        fr.Score,
			MatchedTerms: fr.MatchedTerms,
		}
	}
	resp.Results = results
	return nil
}

func (e *Engine) keywordSearch(ctx context.Context, query string, fetch int) ([]*store.KeywordResult, error) {
	hits, err := e.config.Keyword.Search(ctx, query, fetch)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "keyword search", err)
	}
	return hits, nil
}

func (e *Engine) semanticSearch(ctx context.Context, query string, fetch int) ([]*store.VectorResult, error) {
	vec, err := e.config.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.ProviderError("embed query", err)
	}

	hits, err := e.config.Vector.Search(ctx, vec, fetch)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "vector search", err)
	}
	return hits, nil
}

func (e *Engine) fromKeyword(hits []*store.KeywordResult) []*Result {
	results := make([]*Result, len(hits))
	for i, h := range hits {
		results[i] = &Result{
			ChunkID:      h.ChunkID,
			Score:        float64(h.TermCount),
			MatchedTerms: h.MatchedTerms,
		}
	}
	return results
}

func (e *Engine) fromSemantic(hits []*store.VectorResult) []*Result {
	results := make([]*Result, len(hits))
	for i, h := range hits {
		results[i] = &Result{
			ChunkID: h.ID,
			Score:   float64(h.Score),
		}
	}
	return results
}

// enrich fills each result with its chunk content and location from
// the manifest. Hits with no manifest record are dropped; a sync run
// will clean their index entries up.
func (e *Engine) enrich(ctx context.Context, results []*Result) ([]*Result, error) {
	if len(results) == 0 {
		return results, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}

	chunks, err := e.config.Manifest.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	kept := results[:0]
	for _, r := range results {
		info, ok := chunks[r.ChunkID]
		if !ok {
			slog.Debug("dropping hit with no manifest chunk", slog.String("chunk_id", r.ChunkID))
			continue
		}
		r.Path = info.Path
		r.HeadingPath = info.HeadingPath
		r.ChunkType = info.Type
		r.Content = info.Content
		kept = append(kept, r)
	}
	return kept, nil
}
