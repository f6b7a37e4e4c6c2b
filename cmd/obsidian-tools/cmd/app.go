package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glibalien/obsidian-tools-sub002/internal/chunk"
	"github.com/glibalien/obsidian-tools-sub002/internal/config"
	"github.com/glibalien/obsidian-tools-sub002/internal/embed"
	"github.com/glibalien/obsidian-tools-sub002/internal/index"
	"github.com/glibalien/obsidian-tools-sub002/internal/manifest"
	"github.com/glibalien/obsidian-tools-sub002/internal/search"
	"github.com/glibalien/obsidian-tools-sub002/internal/store"
)

// app holds the wired engine components for one CLI invocation.
type app struct {
	cfg        *config.Config
	vaultRoot  string
	dataDir    string
	vectorPath string

	manifest *manifest.Store
	keyword  *store.BleveKeywordIndex
	vector   *store.HNSWStore
	embedder embed.Embedder
	sync     *index.Synchronizer
	engine   *search.Engine
}

// openApp resolves the vault, loads configuration, and opens the
// stores. Callers must call close.
func openApp(ctx context.Context) (*app, error) {
	vaultRoot, err := resolveVaultRoot()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(vaultRoot)
	if err != nil {
		return nil, err
	}

	dataDir := cfg.DataDir(vaultRoot)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	a := &app{
		cfg:        cfg,
		vaultRoot:  vaultRoot,
		dataDir:    dataDir,
		vectorPath: filepath.Join(dataDir, "vectors.hnsw"),
	}

	a.manifest, err = manifest.Open(filepath.Join(dataDir, "manifest.db"))
	if err != nil {
		a.close()
		return nil, err
	}

	a.keyword, err = store.NewBleveKeywordIndex(filepath.Join(dataDir, "keyword.bleve"))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	a.embedder, err = embed.NewEmbedder(ctx, embed.Options{
		Provider:   embed.ParseProvider(cfg.Embeddings.Provider),
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.OllamaHost,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		CacheSize:  cfg.Embeddings.CacheSize,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	// An existing vector store fixes the dimensions; a fresh one takes
	// them from the embedder.
	dims, err := store.ReadHNSWStoreDimensions(a.vectorPath)
	if err != nil {
		a.close()
		return nil, err
	}
	if dims == 0 {
		dims = a.embedder.Dimensions()
	}

	a.vector, err = store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	if err != nil {
		a.close()
		return nil, err
	}
	if _, statErr := os.Stat(a.vectorPath); statErr == nil {
		if err := a.vector.Load(a.vectorPath); err != nil {
			slog.Warn("vector store unreadable, starting empty",
				slog.String("path", a.vectorPath),
				slog.String("error", err.Error()))
		}
	}

	chunker := chunk.NewMarkdownChunkerWithOptions(chunk.MarkdownChunkerOptions{
		MaxChunkChars: cfg.Chunking.MaxChunkChars,
	})

	a.sync = index.NewSynchronizer(index.SynchronizerConfig{
		VaultRoot:   vaultRoot,
		ExcludeDirs: cfg.Vault.Exclude,
		MaxFileSize: int64(cfg.Vault.MaxFileSizeKB) * 1024,
		Chunker:     chunker,
		Manifest:    a.manifest,
		Keyword:     a.keyword,
		Vector:      a.vector,
		Embedder:    a.embedder,
		VectorPath:  a.vectorPath,
	})

	a.engine = search.NewEngine(search.EngineConfig{
		Keyword:  a.keyword,
		Vector:   a.vector,
		Embedder: a.embedder,
		Manifest: a.manifest,
		Weights: search.Weights{
			Keyword:  cfg.Search.KeywordWeight,
			Semantic: cfg.Search.SemanticWeight,
		},
		RRFConstant: cfg.Search.RRFConstant,
		Oversample:  cfg.Search.Oversample,
	})

	return a, nil
}

// resolveVaultRoot picks the vault root from the --vault flag or by
// walking up from the current directory.
func resolveVaultRoot() (string, error) {
	if flagVault != "" {
		abs, err := filepath.Abs(flagVault)
		if err != nil {
			return "", fmt.Errorf("resolve vault path: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return "", fmt.Errorf("vault directory not found: %s", abs)
		}
		return abs, nil
	}
	return config.FindVaultRoot(".")
}

// lock acquires the exclusive index lock, waiting up to timeout.
func (a *app) lock(ctx context.Context, timeout time.Duration) (*index.FileLock, error) {
	l := index.NewFileLock(a.dataDir)

	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.TryLock()
		if err != nil {
			return nil, err
		}
		if ok {
			return l, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("another obsidian-tools process is indexing this vault (lock: %s)", l.Path())
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (a *app) close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.vector != nil {
		_ = a.vector.Close()
	}
	if a.keyword != nil {
		_ = a.keyword.Close()
	}
	if a.manifest != nil {
		_ = a.manifest.Close()
	}
}
