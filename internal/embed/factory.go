package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses the Ollama API for embeddings (default)
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (no external service)
	ProviderStatic ProviderType = "static"
)

// Options configures embedder construction.
type Options struct {
	Provider   ProviderType
	Model      string
	Host       string
	Dimensions int
	BatchSize  int
	CacheSize  int
}

// NewEmbedder creates an embedder for the given options, wrapped with
// an LRU cache. An empty provider auto-selects: Ollama when reachable,
// static otherwise. An explicitly requested provider never falls back.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	inner, err := newInnerEmbedder(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(inner, opts.CacheSize), nil
}

func newInnerEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	switch opts.Provider {
	case ProviderStatic:
		return NewStaticEmbedder(), nil

	case ProviderOllama:
		return NewOllamaEmbedder(ctx, ollamaConfig(opts))

	case "":
		embedder, err := NewOllamaEmbedder(ctx, ollamaConfig(opts))
		if err == nil {
			return embedder, nil
		}
		slog.Warn("ollama unavailable, using static embeddings",
			slog.String("error", err.Error()))
		return NewStaticEmbedder(), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: %s)",
			opts.Provider, strings.Join(ValidProviders(), ", "))
	}
}

func ollamaConfig(opts Options) OllamaConfig {
	return OllamaConfig{
		Host:       opts.Host,
		Model:      opts.Model,
		Dimensions: opts.Dimensions,
		BatchSize:  opts.BatchSize,
	}
}

// ParseProvider converts a string to a ProviderType. Unknown values
// map to the empty auto-select provider.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "ollama":
		return ProviderOllama
	case "static":
		return ProviderStatic
	default:
		return ""
	}
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{string(ProviderOllama), string(ProviderStatic)}
}
