package index

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/glibalien/obsidian-tools-sub002/internal/errors"
	"github.com/glibalien/obsidian-tools-sub002/internal/manifest"
	"github.com/glibalien/obsidian-tools-sub002/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanKeyword indicates a keyword entry with no manifest record.
	InconsistencyOrphanKeyword InconsistencyType = iota
	// InconsistencyOrphanVector indicates a vector entry with no manifest record.
	InconsistencyOrphanVector
	// InconsistencyMissingKeyword indicates a manifest chunk missing from the keyword index.
	InconsistencyMissingKeyword
	// InconsistencyMissingVector indicates a manifest chunk missing from the vector store.
	InconsistencyMissingVector
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanKeyword:
		return "orphan_keyword"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingKeyword:
		return "missing_keyword"
	case InconsistencyMissingVector:
		return "missing_vector"
	default:
		return "unknown"
	}
}

// Inconsistency represents a detected cross-store issue.
type Inconsistency struct {
	Type    InconsistencyType
	ChunkID string
	Path    string // owning document, empty for orphans
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of manifest chunks verified.
	Checked int
	// Inconsistencies contains all detected issues.
	Inconsistencies []Inconsistency
	// Duration is how long the check took.
	Duration time.Duration
}

// ConsistencyChecker validates that the manifest, keyword index, and
// vector store agree on which chunks exist. The manifest is the source
// of truth.
type ConsistencyChecker struct {
	manifest *manifest.Store
	keyword  store.KeywordIndex
	vector   store.VectorStore
}

// NewConsistencyChecker creates a checker over the given stores.
func NewConsistencyChecker(m *manifest.Store, keyword store.KeywordIndex, vector store.VectorStore) *ConsistencyChecker {
	return &ConsistencyChecker{
		manifest: m,
		keyword:  keyword,
		vector:   vector,
	}
}

// Check scans all three stores for disagreements.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	var issues []Inconsistency

	paths, err := c.manifest.AllPaths(ctx)
	if err != nil {
		return nil, err
	}

	// chunk id -> owning path
	manifestIDs := make(map[string]string)
	for _, path := range paths {
		ids, err := c.manifest.ChunkIDs(ctx, path)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			manifestIDs[id] = path
		}
	}

	keywordIDs, err := c.keyword.AllIDs()
	if err != nil {
		return nil, errors.StoreError("list keyword index ids", err)
	}
	vectorIDs := c.vector.AllIDs()

	for _, id := range keywordIDs {
		if _, ok := manifestIDs[id]; !ok {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanKeyword, ChunkID: id})
		}
	}
	for _, id := range vectorIDs {
		if _, ok := manifestIDs[id]; !ok {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanVector, ChunkID: id})
		}
	}

	keywordSet := make(map[string]bool, len(keywordIDs))
	for _, id := range keywordIDs {
		keywordSet[id] = true
	}
	vectorSet := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		vectorSet[id] = true
	}

	for id, path := range manifestIDs {
		if !keywordSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingKeyword, ChunkID: id, Path: path})
		}
		if !vectorSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingVector, ChunkID: id, Path: path})
		}
	}

	return &CheckResult{
		Checked:         len(manifestIDs),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair fixes detected inconsistencies. Orphans are deleted from
// their index. Documents with missing chunks are dropped from the
// manifest so the next sync run reindexes them from disk; the affected
// paths are returned so callers can trigger that run.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) ([]string, error) {
	var orphanKeyword, orphanVector []string
	reindexPaths := make(map[string]bool)

	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanKeyword:
			orphanKeyword = append(orphanKeyword, issue.ChunkID)
		case InconsistencyOrphanVector:
			orphanVector = append(orphanVector, issue.ChunkID)
		case InconsistencyMissingKeyword, InconsistencyMissingVector:
			if issue.Path != "" {
				reindexPaths[issue.Path] = true
			}
		}
	}

	if len(orphanKeyword) > 0 {
		if err := c.keyword.Delete(ctx, orphanKeyword); err != nil {
			return nil, errors.StoreError("delete orphan keyword entries", err)
		}
		slog.Info("deleted orphan keyword entries", slog.Int("count", len(orphanKeyword)))
	}

	if len(orphanVector) > 0 {
		if err := c.vector.Delete(ctx, orphanVector); err != nil {
			return nil, errors.StoreError("delete orphan vector entries", err)
		}
		slog.Info("deleted orphan vector entries", slog.Int("count", len(orphanVector)))
	}

	paths := make([]string, 0, len(reindexPaths))
	for path := range reindexPaths {
		// Clear whatever the indexes still hold for the document so
		// the reindex starts from nothing
		ids, err := c.manifest.ChunkIDs(ctx, path)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			if err := c.keyword.Delete(ctx, ids); err != nil {
				return nil, errors.StoreError("clear keyword chunks before reindex", err)
			}
			if err := c.vector.Delete(ctx, ids); err != nil {
				return nil, errors.StoreError("clear vector chunks before reindex", err)
			}
		}
		if err := c.manifest.Remove(ctx, path); err != nil {
			return nil, errors.ManifestInconsistency(path, err)
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	if len(paths) > 0 {
		slog.Info("scheduled inconsistent documents for reindex", slog.Int("count", len(paths)))
	}

	return paths, nil
}
