package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

var errStoreClosed = errors.New("vector store is closed")

// HNSWStore is a VectorStore backed by a coder/hnsw graph. Chunk IDs
// are strings; the graph keys on uint64, so the store keeps both
// directions of the mapping. Deletion is lazy: a removed ID is dropped
// from the mapping and its node is left orphaned in the graph, which
// sidesteps coder/hnsw's removal of the last node.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	keys    map[string]uint64 // chunk ID -> graph key
	ids     map[uint64]string // graph key -> chunk ID
	nextKey uint64

	closed bool
}

// hnswMeta is the gob sidecar persisted next to the graph file.
type hnswMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

// NewHNSWStore creates an empty vector store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	if cfg.Metric == "l2" {
		graph.Distance = hnsw.EuclideanDistance
	} else {
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:  graph,
		config: cfg,
		keys:   make(map[string]uint64),
		ids:    make(map[uint64]string),
	}, nil
}

func (s *HNSWStore) checkDims(v []float32) error {
	if len(v) != s.config.Dimensions {
		return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
	}
	return nil
}

// prepared copies v and, for cosine metric, normalizes it to unit
// length so stored and query vectors compare on the same scale.
func (s *HNSWStore) prepared(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	if s.config.Metric == "cos" {
		normalize(out)
	}
	return out
}

// Add inserts vectors under their chunk IDs, replacing any existing
// entry for the same ID.
func (s *HNSWStore) Add(ctx context.Context, chunkIDs []string, vectors [][]float32) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if len(chunkIDs) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(chunkIDs), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	for _, v := range vectors {
		if err := s.checkDims(v); err != nil {
			return err
		}
	}

	for i, id := range chunkIDs {
		if oldKey, ok := s.keys[id]; ok {
			// Replace = lazy-delete the old node, insert a new one
			delete(s.ids, oldKey)
			delete(s.keys, id)
		}

		key := s.nextKey
		s.nextKey++

		s.graph.Add(hnsw.MakeNode(key, s.prepared(vectors[i])))
		s.keys[id] = key
		s.ids[key] = id
	}

	return nil
}

// Search returns up to k nearest neighbors of the query vector,
// skipping lazily deleted nodes.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}
	if err := s.checkDims(query); err != nil {
		return nil, err
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	q := s.prepared(query)

	results := make([]*VectorResult, 0, k)
	for _, node := range s.graph.Search(q, k) {
		id, live := s.ids[node.Key]
		if !live {
			continue
		}
		dist := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: dist,
			Score:    similarity(dist, s.config.Metric),
		})
	}
	return results, nil
}

// Delete drops the IDs from the mapping. Graph nodes stay behind as
// orphans and never surface in results.
func (s *HNSWStore) Delete(ctx context.Context, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	for _, id := range chunkIDs {
		if key, ok := s.keys[id]; ok {
			delete(s.ids, key)
			delete(s.keys, id)
		}
	}
	return nil
}

// AllIDs returns every live chunk ID.
func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}

	out := make([]string, 0, len(s.keys))
	for id := range s.keys {
		out = append(out, id)
	}
	return out
}

// Contains reports whether a chunk ID is live in the store.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, ok := s.keys[id]
	return ok
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.keys)
}

// HNSWStats describes store occupancy. Orphans accumulate from lazy
// deletion and are reclaimed only by a full rebuild.
type HNSWStats struct {
	Live       int
	GraphNodes int
	Orphans    int
}

// Stats returns live, total, and orphaned node counts.
func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return HNSWStats{}
	}
	return HNSWStats{
		Live:       len(s.keys),
		GraphNodes: s.graph.Len(),
		Orphans:    s.graph.Len() - len(s.keys),
	}
}

// writeAtomic writes via a temp file in the same directory and renames
// it into place.
func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Save persists the graph to path and the ID mapping to path+".meta",
// each written atomically.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vector store directory: %w", err)
	}

	if err := writeAtomic(path, func(f *os.File) error {
		if err := s.graph.Export(f); err != nil {
			return fmt.Errorf("export graph: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}

	return writeAtomic(path+".meta", func(f *os.File) error {
		meta := hnswMeta{IDMap: s.keys, NextKey: s.nextKey, Config: s.config}
		if err := gob.NewEncoder(f).Encode(meta); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		return nil
	})
}

// Load restores the graph and ID mapping written by Save.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	meta, err := readMeta(path + ".meta")
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}
	defer func() { _ = f.Close() }()

	// coder/hnsw Import requires io.ByteReader
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.keys = meta.IDMap
	s.nextKey = meta.NextKey
	s.config = meta.Config
	s.ids = make(map[uint64]string, len(s.keys))
	for id, key := range s.keys {
		s.ids[key] = id
	}
	return nil
}

func readMeta(path string) (*hnswMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector metadata: %w", err)
	}
	defer func() { _ = f.Close() }()

	var meta hnswMeta
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode vector metadata: %w", err)
	}
	return &meta, nil
}

// Close marks the store unusable and releases the graph.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// ReadHNSWStoreDimensions reads the dimensionality of a persisted
// store without loading the graph. Returns 0 when no store exists yet.
func ReadHNSWStoreDimensions(vectorPath string) (int, error) {
	meta, err := readMeta(vectorPath + ".meta")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return meta.Config.Dimensions, nil
}

var _ VectorStore = (*HNSWStore)(nil)

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// similarity maps a distance to a descending-is-worse score. Cosine
// distance spans [0,2].
func similarity(dist float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + dist)
	}
	return 1.0 - dist/2.0
}
