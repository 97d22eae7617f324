package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// SQLiteGraph implements GraphStore over the graph_nodes and graph_edges
// tables. Traversal is breadth-first in Go rather than recursive SQL; at
// the bounded depths used here (1-3 hops) the frontier stays small.
type SQLiteGraph struct {
	db *sql.DB
}

var _ GraphStore = (*SQLiteGraph)(nil)

// NewSQLiteGraph wraps an open corpus database.
func NewSQLiteGraph(db *sql.DB) *SQLiteGraph {
	return &SQLiteGraph{db: db}
}

// SaveNodes inserts or replaces graph nodes in one transaction.
func (g *SQLiteGraph) SaveNodes(ctx context.Context, nodes []*GraphNode) error {
	if len(nodes) == 0 {
		return nil
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO graph_nodes (id, name, kind, chunk_id, document_id)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		if _, err := stmt.ExecContext(ctx, n.ID, n.Name, string(n.Kind),
			nullable(n.ChunkID), nullable(n.DocumentID)); err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// SaveEdges inserts or replaces graph edges in one transaction.
func (g *SQLiteGraph) SaveEdges(ctx context.Context, edges []*GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO graph_edges (id, source_id, target_id, relation, weight)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.ID, e.SourceID, e.TargetID, string(e.Relation), e.Weight); err != nil {
			return fmt.Errorf("insert edge %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// FindNodesByName matches query terms against node names by
// case-insensitive containment, so the term "Sinai" reaches the node
// "Mount Sinai". Terms shorter than two characters are ignored; the
// caller passes raw query words and most stopwords fall out naturally by
// never matching a node name.
func (g *SQLiteGraph) FindNodesByName(ctx context.Context, terms []string) ([]*GraphNode, error) {
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if len(t) >= 2 {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}

	conds := make([]string, len(cleaned))
	args := make([]any, len(cleaned))
	for i, t := range cleaned {
		conds[i] = `name LIKE '%' || ? || '%' ESCAPE '\'`
		args[i] = escapeLike(t)
	}

	rows, err := g.db.QueryContext(ctx, `
		SELECT id, name, kind, chunk_id, document_id
		FROM graph_nodes
		WHERE `+strings.Join(conds, " OR "), args...)
	if err != nil {
		return nil, fmt.Errorf("find nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*GraphNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// Traverse walks edges outward from startIDs up to depth hops and
// returns the chunks reached. A chunk's score is the sum over paths of
// edge weights damped by 1/hops; a chunk reached through several nodes
// accumulates their contributions. Results are ordered score desc, then
// chunk id asc for determinism.
func (g *SQLiteGraph) Traverse(ctx context.Context, startIDs []string, depth int, limit int) ([]*GraphHit, error) {
	if len(startIDs) == 0 || depth < 1 {
		return nil, nil
	}

	type visit struct {
		score float64
		path  []string
	}
	visited := make(map[string]visit, len(startIDs))
	frontier := make([]string, 0, len(startIDs))
	for _, id := range startIDs {
		visited[id] = visit{score: 1.0}
		frontier = append(frontier, id)
	}

	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		placeholders := strings.Repeat("?,", len(frontier))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]any, len(frontier))
		for i, id := range frontier {
			args[i] = id
		}

		// Edges are traversed in both directions; the graph is stored
		// directed but relatedness is symmetric for retrieval.
		rows, err := g.db.QueryContext(ctx, `
			SELECT source_id, target_id, weight FROM graph_edges
			WHERE source_id IN (`+placeholders+`) OR target_id IN (`+placeholders+`)`,
			append(args, args...)...)
		if err != nil {
			return nil, fmt.Errorf("traverse hop %d: %w", hop, err)
		}

		next := make(map[string]visit)
		for rows.Next() {
			var src, dst string
			var weight float64
			if err := rows.Scan(&src, &dst, &weight); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan edge: %w", err)
			}
			for _, pair := range [][2]string{{src, dst}, {dst, src}} {
				from, to := pair[0], pair[1]
				origin, ok := visited[from]
				if !ok {
					continue
				}
				if _, seen := visited[to]; seen {
					continue
				}
				contribution := origin.score * weight / float64(hop)
				if prev, ok := next[to]; !ok || contribution > prev.score {
					next[to] = visit{score: contribution, path: append(append([]string{}, origin.path...), from)}
				}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate edges: %w", err)
		}
		rows.Close()

		frontier = frontier[:0]
		for id, v := range next {
			visited[id] = v
			frontier = append(frontier, id)
		}
		sort.Strings(frontier) // deterministic query order
	}

	// Map reached nodes back to their originating chunks.
	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := g.db.QueryContext(ctx, `
		SELECT id, name, chunk_id FROM graph_nodes
		WHERE id IN (`+placeholders+`) AND chunk_id IS NOT NULL AND chunk_id != ''`, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve chunks: %w", err)
	}
	defer rows.Close()

	byChunk := make(map[string]*GraphHit)
	for rows.Next() {
		var nodeID, name string
		var chunkID sql.NullString
		if err := rows.Scan(&nodeID, &name, &chunkID); err != nil {
			return nil, fmt.Errorf("scan chunk mapping: %w", err)
		}
		if !chunkID.Valid {
			continue
		}
		v := visited[nodeID]
		if hit, ok := byChunk[chunkID.String]; ok {
			hit.Score += v.score
		} else {
			byChunk[chunkID.String] = &GraphHit{
				ChunkID: chunkID.String,
				Score:   v.score,
				Path:    append(v.path, name),
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk mappings: %w", err)
	}

	hits := make([]*GraphHit, 0, len(byChunk))
	for _, h := range byChunk {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// NodeCount returns the total node count.
func (g *SQLiteGraph) NodeCount(ctx context.Context) (int, error) {
	var n int
	if err := g.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return n, nil
}

// Close is a no-op; the shared database handle is owned by the caller.
func (g *SQLiteGraph) Close() error { return nil }

func scanNode(row rowScanner) (*GraphNode, error) {
	var n GraphNode
	var kind string
	var chunkID, docID sql.NullString
	if err := row.Scan(&n.ID, &n.Name, &kind, &chunkID, &docID); err != nil {
		return nil, err
	}
	n.Kind = NodeKind(kind)
	n.ChunkID = chunkID.String
	n.DocumentID = docID.String
	return &n, nil
}

// escapeLike neutralizes LIKE wildcards in a user-supplied term.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
