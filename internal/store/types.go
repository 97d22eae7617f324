// Package store provides the persistence layer: the SQLite corpus and
// knowledge graph, the bleve lexical index, and the HNSW vector index.
package store

import (
	"context"
	"fmt"
	"time"
)

// NodeKind classifies a knowledge-graph node.
type NodeKind string

const (
	NodePerson   NodeKind = "Person"
	NodePlace    NodeKind = "Place"
	NodeEvent    NodeKind = "Event"
	NodeConcept  NodeKind = "Concept"
	NodeBook     NodeKind = "Book"
	NodeCovenant NodeKind = "Covenant"
)

// Relation classifies a knowledge-graph edge.
type Relation string

const (
	RelAppearsIn  Relation = "APPEARS_IN"
	RelReferences Relation = "REFERENCES"
	RelFulfills   Relation = "FULFILLS"
	RelProphesies Relation = "PROPHESIES"
	RelTeaches    Relation = "TEACHES"
	RelLocatedIn  Relation = "LOCATED_IN"
	RelRelatedTo  Relation = "RELATED_TO"
	RelMentions   Relation = "MENTIONS"
)

// State keys for the corpus key-value store.
const (
	// StateKeyIndexDimension stores the embedding dimension used to build
	// the vector index. A running embedder with a different dimension is
	// a fatal configuration mismatch.
	StateKeyIndexDimension = "index_embedding_dimension"
	// StateKeyIndexModel stores the embedding model name used for the index.
	StateKeyIndexModel = "index_embedding_model"
)

// Document represents a source text, typically one book of one translation.
type Document struct {
	ID          string
	Translation string // KJV, ESV, ...
	Testament   string // old, new
	Book        string // Genesis, Daniel, ...
	BookOrder   int    // canonical ordering, 1-66
	Text        string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// Chunk is the retrievable unit: a passage of one or more verses.
type Chunk struct {
	ID          string
	DocumentID  string
	Translation string
	Book        string
	Chapter     int
	VerseStart  int
	VerseEnd    int
	Content     string
	Embedding   []float32 // nil when not yet embedded; such chunks never enter the vector index
	Ordinal     int       // position within the document
	TokenCount  int
	Metadata    map[string]string
}

// Reference renders the human-readable passage reference,
// e.g. "KJV Daniel 9:24-27".
func (c *Chunk) Reference() string {
	if c.VerseEnd > c.VerseStart {
		return fmt.Sprintf("%s %s %d:%d-%d", c.Translation, c.Book, c.Chapter, c.VerseStart, c.VerseEnd)
	}
	return fmt.Sprintf("%s %s %d:%d", c.Translation, c.Book, c.Chapter, c.VerseStart)
}

// GraphNode is an entity in the knowledge graph.
type GraphNode struct {
	ID         string
	Name       string
	Kind       NodeKind
	ChunkID    string // originating chunk, may be empty for abstract concepts
	DocumentID string
}

// GraphEdge is a weighted, typed relation between two nodes.
type GraphEdge struct {
	ID       string
	SourceID string
	TargetID string
	Relation Relation
	Weight   float64
}

// LexicalResult is a single BM25 hit.
type LexicalResult struct {
	ChunkID      string
	Score        float64 // unbounded, non-negative
	MatchedTerms []string
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ChunkID  string
	Distance float32 // cosine distance, 0-2
	Score    float32 // cosine similarity, -1..1
}

// GraphHit is a chunk reached through graph traversal.
type GraphHit struct {
	ChunkID string
	Score   float64  // edge-weight sum damped by path length
	Path    []string // node names on the path, for explanations
}

// CorpusStore persists documents and chunks in SQLite.
type CorpusStore interface {
	SaveDocuments(ctx context.Context, docs []*Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)

	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	CountChunks(ctx context.Context) (int, error)

	// EmbeddedChunks streams all chunks that carry an embedding,
	// used to rebuild the vector index.
	EmbeddedChunks(ctx context.Context, fn func(*Chunk) error) error

	// Labels
	SetChunkLabels(ctx context.Context, chunkID string, labels []string) error
	ChunkIDsByLabel(ctx context.Context, label string) (map[string]struct{}, error)

	// State operations (key-value store for runtime state)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// GraphStore persists and traverses the knowledge graph.
type GraphStore interface {
	SaveNodes(ctx context.Context, nodes []*GraphNode) error
	SaveEdges(ctx context.Context, edges []*GraphEdge) error

	// FindNodesByName matches query terms against node names by
	// case-insensitive containment. Used as the entity lexicon for
	// graph retrieval.
	FindNodesByName(ctx context.Context, terms []string) ([]*GraphNode, error)

	// Traverse walks edges outward from the given nodes up to depth hops
	// and returns chunks reached, scored by damped edge weight.
	Traverse(ctx context.Context, startIDs []string, depth int, limit int) ([]*GraphHit, error)

	NodeCount(ctx context.Context) (int, error)

	Close() error
}

// LexicalIndex provides keyword search over chunk content.
type LexicalIndex interface {
	Index(ctx context.Context, chunks []*Chunk) error
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)
	Delete(ctx context.Context, chunkIDs []string) error
	DocCount() (int, error)
	Close() error
}

// VectorIndex provides approximate nearest-neighbor search.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	Contains(id string) bool
	Count() int

	Save(path string) error
	Load(path string) error
	Close() error
}

// VectorIndexConfig configures the HNSW index.
type VectorIndexConfig struct {
	// Dimensions is the embedding dimension; every stored or queried
	// vector must match it exactly.
	Dimensions int

	// M is HNSW max connections per layer.
	M int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultVectorIndexConfig returns sensible defaults for the vector index.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   32,
	}
}

// ErrDimensionMismatch indicates vector dimension mismatch between the
// configured embedder and the stored index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (rebuild the vector index)", e.Expected, e.Got)
}
