package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex implements VectorIndex using the coder/hnsw pure Go HNSW
// implementation. Vectors are normalized on insert so the reported score
// is exact cosine similarity.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorIndexConfig

	// ID mapping (string <-> uint64)
	idMap   map[string]uint64 // chunk ID -> internal key
	keyMap  map[uint64]string // internal key -> chunk ID
	nextKey uint64

	closed bool
}

var _ VectorIndex = (*HNSWIndex)(nil)

// hnswMetadata stores ID mappings for persistence.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorIndexConfig
}

// NewHNSWIndex creates a new HNSW-based vector index.
func NewHNSWIndex(cfg VectorIndexConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 32
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

// Add inserts vectors with their IDs. Existing IDs are replaced via lazy
// deletion: the old graph node is orphaned rather than removed, which
// sidesteps coder/hnsw's trouble with deleting the last node.
func (s *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}

	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey) // orphan the old key
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Search finds the k nearest neighbors to the query vector. Scores are
// cosine similarity in [-1, 1], highest first.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	normalizeVectorInPlace(normalizedQuery)

	nodes := s.graph.Search(normalizedQuery, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			// Orphaned by lazy deletion; skip.
			continue
		}

		// Cosine distance ranges 0 (identical) to 2 (opposite);
		// similarity = 1 - distance.
		distance := s.graph.Distance(normalizedQuery, node.Value)
		results = append(results, &VectorResult{
			ChunkID:  id,
			Distance: distance,
			Score:    1.0 - distance,
		})
	}

	return results, nil
}

// Delete removes vectors by ID via lazy deletion. The graph nodes remain
// but no longer resolve to a chunk and are dropped from results.
func (s *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}

	return nil
}

// Contains checks if an ID exists.
func (s *HNSWIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}

	return len(s.idMap)
}

// Dimensions returns the configured embedding dimension.
func (s *HNSWIndex) Dimensions() int {
	return s.config.Dimensions
}

// Save persists the index to disk atomically (temp file + rename).
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpIndexPath := path + ".tmp"
	file, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := os.Rename(tmpIndexPath, path); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	return nil
}

// saveMetadata saves ID mappings to a gob file.
func (s *HNSWIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Config:  s.config,
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load loads the index from disk.
func (s *HNSWIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires io.ByteReader
	reader := bufio.NewReader(file)
	if err := s.graph.Import(reader); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	return nil
}

// loadMetadata loads ID mappings from a gob file.
func (s *HNSWIndex) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&meta); err != nil {
		return fmt.Errorf("decode hnsw metadata: %w", err)
	}

	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]string)
	s.nextKey = meta.NextKey
	s.config = meta.Config

	for id, key := range s.idMap {
		s.keyMap[key] = id
	}

	return nil
}

// Close releases resources.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.graph = nil

	return nil
}

// ReadIndexDimensions reads the dimensions from an existing vector
// index's metadata. Returns 0 if the metadata file doesn't exist.
// Used at startup to detect dimension mismatch before serving queries.
func ReadIndexDimensions(vectorPath string) (int, error) {
	metaPath := vectorPath + ".meta"

	file, err := os.Open(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil // Fresh start
		}
		return 0, fmt.Errorf("failed to open hnsw metadata: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close hnsw metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&meta); err != nil {
		return 0, fmt.Errorf("failed to decode hnsw metadata: %w", err)
	}

	return meta.Config.Dimensions, nil
}

// RebuildVectorIndex streams every embedded chunk from the corpus into
// idx, in batches. Used at startup when the index snapshot is missing;
// the corpus embeddings are the source of truth. Returns the number of
// chunks indexed.
func RebuildVectorIndex(ctx context.Context, idx VectorIndex, corpus CorpusStore) (int, error) {
	const batchSize = 256

	ids := make([]string, 0, batchSize)
	vectors := make([][]float32, 0, batchSize)
	total := 0

	flush := func() error {
		if len(ids) == 0 {
			return nil
		}
		if err := idx.Add(ctx, ids, vectors); err != nil {
			return err
		}
		total += len(ids)
		ids = ids[:0]
		vectors = vectors[:0]
		return nil
	}

	err := corpus.EmbeddedChunks(ctx, func(c *Chunk) error {
		ids = append(ids, c.ID)
		vectors = append(vectors, c.Embedding)
		if len(ids) == batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("streaming embedded chunks: %w", err)
	}
	if err := flush(); err != nil {
		return total, fmt.Errorf("indexing embedded chunks: %w", err)
	}
	return total, nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
