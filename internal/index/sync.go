// Package index keeps the keyword index, vector store, and manifest in
// step with the markdown notes on disk.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/glibalien/obsidian-tools-sub002/internal/chunk"
	"github.com/glibalien/obsidian-tools-sub002/internal/embed"
	"github.com/glibalien/obsidian-tools-sub002/internal/errors"
	"github.com/glibalien/obsidian-tools-sub002/internal/manifest"
	"github.com/glibalien/obsidian-tools-sub002/internal/scanner"
	"github.com/glibalien/obsidian-tools-sub002/internal/store"
)

// Summary reports the outcome of a sync run.
type Summary struct {
	// Indexed is the number of documents (re)indexed.
	Indexed int

	// Pruned is the number of removed documents whose chunks were
	// deleted from the indexes.
	Pruned int

	// FailedPaths lists documents that could not be indexed this run.
	// Their previous index state is left untouched.
	FailedPaths []string

	// Duration is how long the run took.
	Duration time.Duration
}

// SynchronizerConfig wires the synchronizer's collaborators.
type SynchronizerConfig struct {
	// VaultRoot is the absolute path to the vault.
	VaultRoot string

	// ExcludeDirs are directory names skipped while scanning.
	ExcludeDirs []string

	// MaxFileSize caps note size in bytes (0 = scanner default).
	MaxFileSize int64

	Chunker  chunk.Chunker
	Manifest *manifest.Store
	Keyword  store.KeywordIndex
	Vector   store.VectorStore
	Embedder embed.Embedder

	// VectorPath, when set, is where the vector index is persisted
	// after a successful run.
	VectorPath string
}

// Synchronizer diffs the vault against the manifest and applies the
// difference to both search indexes.
type Synchronizer struct {
	config  SynchronizerConfig
	scanner *scanner.Scanner
}

// NewSynchronizer creates a synchronizer.
func NewSynchronizer(config SynchronizerConfig) *Synchronizer {
	return &Synchronizer{
		config:  config,
		scanner: scanner.New(),
	}
}

// Fingerprint returns the content fingerprint used for change
// detection: the first 16 hex chars of the sha256 of the file bytes.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:16]
}

// Run synchronizes the index with the vault. With full set, every
// document is reindexed regardless of fingerprint. Individual document
// failures are collected in the summary; only storage-level failures
// abort the run.
func (s *Synchronizer) Run(ctx context.Context, full bool) (*Summary, error) {
	start := time.Now()

	// Captured before enumeration so edits racing the scan are
	// revisited on the next incremental run
	t0 := time.Now().UTC()

	if !full {
		changed, err := s.embedderChanged(ctx)
		if err != nil {
			return nil, err
		}
		if changed {
			slog.Info("embedding model changed, forcing full reindex",
				slog.String("model", s.config.Embedder.ModelName()))
			full = true
		}
	}

	files, err := s.scanner.ScanAll(ctx, &scanner.Options{
		RootDir:     s.config.VaultRoot,
		ExcludeDirs: s.config.ExcludeDirs,
		MaxFileSize: s.config.MaxFileSize,
	})
	if err != nil {
		return nil, errors.New(errors.ErrCodeFileNotFound, "scan vault", err)
	}

	known, err := s.config.Manifest.Fingerprints(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	seen := make(map[string]bool, len(files))

	for _, f := range files {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		seen[f.Path] = true

		content, readErr := os.ReadFile(f.AbsPath)
		if readErr != nil {
			slog.Warn("failed to read note",
				slog.String("path", f.Path),
				slog.String("error", readErr.Error()))
			summary.FailedPaths = append(summary.FailedPaths, f.Path)
			continue
		}

		fp := Fingerprint(content)
		if !full && known[f.Path] == fp {
			continue
		}

		if err := s.indexDocument(ctx, f.Path, content, fp, full); err != nil {
			if errors.IsFatal(err) {
				return summary, err
			}
			slog.Warn("failed to index note",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			summary.FailedPaths = append(summary.FailedPaths, f.Path)
			continue
		}
		summary.Indexed++
	}

	// Prune documents that vanished from the vault. Runs after all
	// upserts so a rename never leaves a window with neither path
	// searchable.
	for path := range known {
		if seen[path] {
			continue
		}
		if err := s.removeDocument(ctx, path); err != nil {
			if errors.IsFatal(err) {
				return summary, err
			}
			slog.Warn("failed to prune note",
				slog.String("path", path),
				slog.String("error", err.Error()))
			summary.FailedPaths = append(summary.FailedPaths, path)
			continue
		}
		summary.Pruned++
	}

	if s.config.VectorPath != "" {
		if err := s.config.Vector.Save(s.config.VectorPath); err != nil {
			return summary, errors.StoreError("persist vector index", err)
		}
	}

	// The watermark moves only when every document made it in, so
	// failed paths are retried next run
	if len(summary.FailedPaths) == 0 {
		if err := s.recordRunState(ctx, t0); err != nil {
			return summary, err
		}
	}

	sort.Strings(summary.FailedPaths)
	summary.Duration = time.Since(start)

	slog.Info("sync complete",
		slog.Bool("full", full),
		slog.Int("indexed", summary.Indexed),
		slog.Int("pruned", summary.Pruned),
		slog.Int("failed", len(summary.FailedPaths)),
		slog.Duration("duration", summary.Duration))

	return summary, nil
}

// indexDocument chunks one note and applies the chunk-level diff:
// unchanged chunk IDs are skipped, new chunks are upserted into both
// indexes, and stale chunks are pruned after the upsert. A chunk is
// skipped only when the vector store still holds it, so a rebuilt or
// lost store gets repopulated. Full runs re-embed everything.
func (s *Synchronizer) indexDocument(ctx context.Context, path string, content []byte, fp string, full bool) error {
	chunks, err := s.config.Chunker.Chunk(ctx, &chunk.FileInput{Path: path, Content: content})
	if err != nil {
		return errors.ChunkingError(fmt.Sprintf("chunk %s", path), err)
	}

	oldIDs, err := s.config.Manifest.ChunkIDs(ctx, path)
	if err != nil {
		return err
	}
	oldSet := make(map[string]bool, len(oldIDs))
	for _, id := range oldIDs {
		oldSet[id] = true
	}

	newSet := make(map[string]bool, len(chunks))
	var toAdd []*chunk.Chunk
	for _, c := range chunks {
		newSet[c.ID] = true
		if full || !oldSet[c.ID] || !s.config.Vector.Contains(c.ID) {
			toAdd = append(toAdd, c)
		}
	}

	if len(toAdd) > 0 {
		title := docTitle(path, chunks)

		texts := make([]string, len(toAdd))
		for i, c := range toAdd {
			texts[i] = embeddingText(title, c)
		}
		vectors, err := s.config.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return errors.ProviderError(fmt.Sprintf("embed %s", path), err)
		}

		docs := make([]*store.Document, len(toAdd))
		ids := make([]string, len(toAdd))
		for i, c := range toAdd {
			docs[i] = &store.Document{ID: c.ID, Content: c.Content}
			ids[i] = c.ID
		}

		if err := s.config.Keyword.Index(ctx, docs); err != nil {
			return errors.StoreError(fmt.Sprintf("keyword index %s", path), err)
		}
		if err := s.config.Vector.Add(ctx, ids, vectors); err != nil {
			return errors.StoreError(fmt.Sprintf("vector index %s", path), err)
		}
	}

	refs := make([]manifest.ChunkRef, len(chunks))
	for i, c := range chunks {
		refs[i] = manifest.ChunkRef{
			ChunkID:     c.ID,
			Position:    c.Position,
			Type:        string(c.Type),
			HeadingPath: c.HeadingPath,
			Content:     c.Content,
		}
	}
	if err := s.config.Manifest.Put(ctx, &manifest.Entry{
		Path:        path,
		Fingerprint: fp,
		IndexedAt:   time.Now().UTC(),
		Chunks:      refs,
	}); err != nil {
		return err
	}

	var stale []string
	for _, id := range oldIDs {
		if !newSet[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := s.config.Keyword.Delete(ctx, stale); err != nil {
			return errors.StoreError(fmt.Sprintf("prune keyword chunks for %s", path), err)
		}
		if err := s.config.Vector.Delete(ctx, stale); err != nil {
			return errors.StoreError(fmt.Sprintf("prune vector chunks for %s", path), err)
		}
	}

	return nil
}

// removeDocument deletes a vanished note from both indexes and the
// manifest.
func (s *Synchronizer) removeDocument(ctx context.Context, path string) error {
	ids, err := s.config.Manifest.ChunkIDs(ctx, path)
	if err != nil {
		return err
	}

	if len(ids) > 0 {
		if err := s.config.Keyword.Delete(ctx, ids); err != nil {
			return errors.StoreError(fmt.Sprintf("delete keyword chunks for %s", path), err)
		}
		if err := s.config.Vector.Delete(ctx, ids); err != nil {
			return errors.StoreError(fmt.Sprintf("delete vector chunks for %s", path), err)
		}
	}

	return s.config.Manifest.Remove(ctx, path)
}

// embedderChanged reports whether the recorded embedding model differs
// from the current one. Vectors from different models are not
// comparable, so a model switch forces a full reindex.
func (s *Synchronizer) embedderChanged(ctx context.Context) (bool, error) {
	recorded, err := s.config.Manifest.GetState(ctx, manifest.StateKeyModel)
	if err != nil {
		return false, err
	}
	return recorded != "" && recorded != s.config.Embedder.ModelName(), nil
}

// recordRunState persists the watermark and embedder identity.
func (s *Synchronizer) recordRunState(ctx context.Context, t0 time.Time) error {
	if err := s.config.Manifest.SetState(ctx, manifest.StateKeyWatermark, t0.Format(time.RFC3339)); err != nil {
		return err
	}
	if err := s.config.Manifest.SetState(ctx, manifest.StateKeyModel, s.config.Embedder.ModelName()); err != nil {
		return err
	}
	return s.config.Manifest.SetState(ctx, manifest.StateKeyDimensions,
		strconv.Itoa(s.config.Embedder.Dimensions()))
}

// docTitle derives a display title for the note: frontmatter title if
// present, otherwise the file name without extension.
func docTitle(path string, chunks []*chunk.Chunk) string {
	for _, c := range chunks {
		if c.Type == chunk.ChunkTypeFrontmatter && c.Metadata != nil {
			if title, ok := c.Metadata["title"]; ok && title != "" {
				return title
			}
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// embeddingText builds the provider input for a chunk. Prepending the
// title and heading path gives short chunks document-level context.
func embeddingText(title string, c *chunk.Chunk) string {
	var b strings.Builder
	b.WriteString(title)
	if c.HeadingPath != "" {
		b.WriteString(" > ")
		b.WriteString(c.HeadingPath)
	}
	b.WriteString("\n\n")
	b.WriteString(c.Content)
	return b.String()
}
