package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/glibalien/obsidian-tools-sub002/internal/embed"
	"github.com/glibalien/obsidian-tools-sub002/internal/index"
	"github.com/glibalien/obsidian-tools-sub002/internal/manifest"
	"github.com/glibalien/obsidian-tools-sub002/internal/search"
	"github.com/glibalien/obsidian-tools-sub002/pkg/version"
)

// Server bridges MCP clients with the vault search engine and the
// index synchronizer.
type Server struct {
	mcp      *mcp.Server
	engine   *search.Engine
	sync     *index.Synchronizer
	manifest *manifest.Store
	embedder embed.Embedder
	logger   *slog.Logger

	vaultRoot string

	// syncMu serializes reindex runs. Search is unaffected.
	syncMu sync.Mutex
}

// SearchInput is the argument schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
	Mode  string `json:"mode,omitempty" jsonschema:"retrieval mode: hybrid, semantic, or keyword (default hybrid)"`
}

// SearchOutput is the result schema for the search tool.
type SearchOutput struct {
	Results  []SearchResultOutput `json:"results" jsonschema:"ranked search results"`
	Mode     string               `json:"mode" jsonschema:"retrieval mode used"`
	Degraded bool                 `json:"degraded,omitempty" jsonschema:"true if one retrieval source was unavailable"`
}

// SearchResultOutput is one search hit.
type SearchResultOutput struct {
	Path         string   `json:"path" jsonschema:"note path relative to the vault root"`
	HeadingPath  string   `json:"heading_path,omitempty" jsonschema:"section location, e.g. Projects > Garden"`
	ChunkType    string   `json:"chunk_type" jsonschema:"structural kind of the chunk"`
	Content      string   `json:"content" jsonschema:"chunk text"`
	Score        float64  `json:"score" jsonschema:"relevance score"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms matched by the keyword source"`
}

// ReindexInput is the argument schema for the reindex tool.
type ReindexInput struct {
	Full bool `json:"full,omitempty" jsonschema:"reindex every note instead of only changed ones"`
}

// ReindexOutput is the result schema for the reindex tool.
type ReindexOutput struct {
	Indexed     int      `json:"indexed" jsonschema:"number of notes indexed"`
	Pruned      int      `json:"pruned" jsonschema:"number of notes removed from the index"`
	FailedPaths []string `json:"failed_paths,omitempty" jsonschema:"notes that could not be indexed"`
	DurationMS  int64    `json:"duration_ms" jsonschema:"run duration in milliseconds"`
}

// VaultStatusInput is the (empty) argument schema for vault_status.
type VaultStatusInput struct{}

// VaultStatusOutput reports index readiness and the active embedder.
type VaultStatusOutput struct {
	VaultRoot    string `json:"vault_root" jsonschema:"absolute path of the vault"`
	Documents    int    `json:"documents" jsonschema:"number of indexed notes"`
	Chunks       int    `json:"chunks" jsonschema:"number of indexed chunks"`
	LastSyncedAt string `json:"last_synced_at,omitempty" jsonschema:"RFC3339 time of the last fully successful sync"`
	Embedder     string `json:"embedder" jsonschema:"active embedding model name"`
	Dimensions   int    `json:"dimensions" jsonschema:"embedding vector dimensions"`
	Semantic     string `json:"semantic_quality" jsonschema:"semantic search quality: high (provider) or low (static fallback)"`
}

// Config wires the server's collaborators.
type Config struct {
	Engine       *search.Engine
	Synchronizer *index.Synchronizer
	Manifest     *manifest.Store
	Embedder     embed.Embedder
	VaultRoot    string
	Logger       *slog.Logger
}

// NewServer creates an MCP server exposing search, reindex, and
// vault_status tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("search engine is required")
	}
	if cfg.Manifest == nil {
		return nil, errors.New("manifest store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		engine:    cfg.Engine,
		sync:      cfg.Synchronizer,
		manifest:  cfg.Manifest,
		embedder:  cfg.Embedder,
		vaultRoot: cfg.VaultRoot,
		logger:    cfg.Logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "obsidian-tools",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search the vault's notes. Hybrid mode fuses keyword and semantic rankings; pass mode=keyword or mode=semantic to use one source.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reindex",
		Description: "Synchronize the index with the vault. Picks up created, edited, and deleted notes. Pass full=true to rebuild from scratch.",
	}, s.handleReindex)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "vault_status",
		Description: "Report index freshness, note and chunk counts, and which embedding model is active.",
	}, s.handleVaultStatus)

	s.logger.Debug("MCP tools registered", slog.Int("count", 3))
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	requestID := generateRequestID()
	start := time.Now()

	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}

	mode, err := search.ParseMode(input.Mode)
	if err != nil {
		return nil, SearchOutput{}, NewInvalidParamsError(fmt.Sprintf("invalid mode %q: use hybrid, semantic, or keyword", input.Mode))
	}

	limit := clampLimit(input.Limit, 10, 1, 50)

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.String("mode", string(mode)),
		slog.Int("limit", limit))

	resp, err := s.engine.Search(ctx, input.Query, limit, mode)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(resp.Results)),
		slog.Bool("degraded", resp.Degraded))

	output := SearchOutput{
		Results:  make([]SearchResultOutput, 0, len(resp.Results)),
		Mode:     string(resp.Mode),
		Degraded: resp.Degraded,
	}
	for _, r := range resp.Results {
		output.Results = append(output.Results, SearchResultOutput{
			Path:         r.Path,
			HeadingPath:  r.HeadingPath,
			ChunkType:    r.ChunkType,
			Content:      r.Content,
			Score:        r.Score,
			MatchedTerms: r.MatchedTerms,
		})
	}
	return nil, output, nil
}

func (s *Server) handleReindex(ctx context.Context, _ *mcp.CallToolRequest, input ReindexInput) (
	*mcp.CallToolResult,
	ReindexOutput,
	error,
) {
	if s.sync == nil {
		return nil, ReindexOutput{}, &ProtocolError{
			Code:    ErrCodeInternalError,
			Message: "Reindexing is not available on this server.",
		}
	}

	requestID := generateRequestID()
	s.logger.Info("reindex started",
		slog.String("request_id", requestID),
		slog.Bool("full", input.Full))

	s.syncMu.Lock()
	summary, err := s.sync.Run(ctx, input.Full)
	s.syncMu.Unlock()

	if err != nil {
		s.logger.Error("reindex failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, ReindexOutput{}, MapError(err)
	}

	s.logger.Info("reindex completed",
		slog.String("request_id", requestID),
		slog.Int("indexed", summary.Indexed),
		slog.Int("pruned", summary.Pruned),
		slog.Int("failed", len(summary.FailedPaths)))

	return nil, ReindexOutput{
		Indexed:     summary.Indexed,
		Pruned:      summary.Pruned,
		FailedPaths: summary.FailedPaths,
		DurationMS:  summary.Duration.Milliseconds(),
	}, nil
}

func (s *Server) handleVaultStatus(ctx context.Context, _ *mcp.CallToolRequest, _ VaultStatusInput) (
	*mcp.CallToolResult,
	*VaultStatusOutput,
	error,
) {
	stats, err := s.manifest.Stats(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}

	watermark, err := s.manifest.GetState(ctx, manifest.StateKeyWatermark)
	if err != nil {
		return nil, nil, MapError(err)
	}

	output := &VaultStatusOutput{
		VaultRoot:    s.vaultRoot,
		Documents:    stats.Documents,
		Chunks:       stats.Chunks,
		LastSyncedAt: watermark,
		Semantic:     "none",
	}

	if s.embedder != nil {
		output.Embedder = s.embedder.ModelName()
		output.Dimensions = s.embedder.Dimensions()
		if output.Embedder == "static" {
			output.Semantic = "low"
		} else {
			output.Semantic = "high"
		}
	}

	return nil, output, nil
}

// Serve runs the server over stdio until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

// clampLimit bounds a client-provided limit, substituting def for
// zero.
func clampLimit(v, def, lo, hi int) int {
	if v == 0 {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// generateRequestID creates a short unique ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
