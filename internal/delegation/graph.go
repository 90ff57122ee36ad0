package delegation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS delegation_edges (
	id              TEXT PRIMARY KEY,
	from_principal  TEXT NOT NULL,
	to_principal    TEXT NOT NULL,
	scope           TEXT NOT NULL,
	constraints_json TEXT,
	created_at      TEXT NOT NULL,
	revoked_at      TEXT
);
CREATE INDEX IF NOT EXISTS idx_edges_from_scope ON delegation_edges(from_principal, scope);
CREATE INDEX IF NOT EXISTS idx_edges_to_scope ON delegation_edges(to_principal, scope);
`

// #endregion schema

// #region constants
// MaxDepth caps delegation chains at three hops. Unbounded chains are an
// unauditable privilege-escalation surface; the cap trades flexibility for
// a traversal a human can still review.
const MaxDepth = 3

// #endregion constants

// #region graph
// Graph stores directed, scoped, revocable authorization edges between
// principals and answers bounded-depth reachability queries.
type Graph struct {
	db *sql.DB
}

// NewGraph initializes the delegation_edges table over an existing connection.
func NewGraph(db *sql.DB) (*Graph, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("delegation schema: %w", err)
	}
	return &Graph{db: db}, nil
}

// #endregion graph

// #region grant
// Grant inserts a new active edge: from lets to act within scope.
func (g *Graph) Grant(from, to, scope string, constraints Constraints) (Edge, error) {
	if from == to {
		return Edge{}, fmt.Errorf("self-delegation is implicit, refusing edge %s → %s", from, to)
	}
	if scope == "" {
		return Edge{}, fmt.Errorf("empty scope")
	}

	e := Edge{
		ID:            uuid.New().String(),
		FromPrincipal: from,
		ToPrincipal:   to,
		Scope:         scope,
		Constraints:   constraints,
		CreatedAt:     time.Now().UTC(),
	}
	consJSON, err := json.Marshal(constraints)
	if err != nil {
		return Edge{}, fmt.Errorf("marshal constraints: %w", err)
	}

	_, err = g.db.Exec(
		`INSERT INTO delegation_edges (id, from_principal, to_principal, scope, constraints_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, from, to, scope, string(consJSON), e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Edge{}, fmt.Errorf("insert edge: %w", err)
	}
	return e, nil
}

// #endregion grant

// #region revoke
// Revoke sets revoked_at on an edge. The row stays for audit; a revoked
// edge never participates in authorization again.
func (g *Graph) Revoke(edgeID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := g.db.Exec(
		`UPDATE delegation_edges SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		now, edgeID,
	)
	if err != nil {
		return fmt.Errorf("revoke edge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke edge: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("edge %s not found or already revoked", edgeID)
	}
	return nil
}

// #endregion revoke

// #region active-edges
// ActiveEdges loads every non-revoked edge for one scope in a single query.
// The BFS traverses this snapshot, so a concurrent grant or revoke cannot
// produce a partially-updated path.
func (g *Graph) ActiveEdges(scope string) ([]Edge, error) {
	rows, err := g.db.Query(
		`SELECT id, from_principal, to_principal, scope, constraints_json, created_at
		 FROM delegation_edges
		 WHERE scope = ? AND revoked_at IS NULL`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var consJSON sql.NullString
		var createdStr string
		if err := rows.Scan(&e.ID, &e.FromPrincipal, &e.ToPrincipal, &e.Scope, &consJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if consJSON.Valid && consJSON.String != "" {
			if err := json.Unmarshal([]byte(consJSON.String), &e.Constraints); err != nil {
				return nil, fmt.Errorf("unmarshal constraints: %w", err)
			}
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// #endregion active-edges

// #region authorize
// Authorize reports whether actor may act on behalf of target within scope.
//
// Trivially true when actor == target: every principal acts for itself.
// Otherwise a breadth-first search walks active exact-scope edges from
// target toward actor, at most MaxDepth hops, with a visited set so cycles
// terminate. Any lookup error or dead end reports false (fail closed).
// Scope matching is exact only; wildcard scopes are deliberately absent.
func (g *Graph) Authorize(actor, target, scope string) bool {
	ok, _, err := g.authorizePath(actor, target, scope)
	if err != nil {
		return false
	}
	return ok
}

// EffectiveConstraints returns the tightened constraints along the found
// authorization path. ok is false when no path exists.
func (g *Graph) EffectiveConstraints(actor, target, scope string) (Constraints, bool) {
	ok, cons, err := g.authorizePath(actor, target, scope)
	if err != nil || !ok {
		return Constraints{}, false
	}
	return cons, true
}

func (g *Graph) authorizePath(actor, target, scope string) (bool, Constraints, error) {
	if actor == target {
		return true, Constraints{}, nil
	}
	if actor == "" || target == "" || scope == "" {
		return false, Constraints{}, nil
	}

	edges, err := g.ActiveEdges(scope)
	if err != nil {
		return false, Constraints{}, err
	}

	// Adjacency over the snapshot: grantor → outgoing edges.
	adjacent := make(map[string][]Edge)
	for _, e := range edges {
		adjacent[e.FromPrincipal] = append(adjacent[e.FromPrincipal], e)
	}

	type queueItem struct {
		id    string
		depth int
		cons  Constraints
	}
	queue := []queueItem{{target, 0, Constraints{}}}
	visited := map[string]bool{target: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= MaxDepth {
			continue
		}

		for _, e := range adjacent[current.id] {
			if visited[e.ToPrincipal] {
				continue
			}
			visited[e.ToPrincipal] = true
			cons := current.cons.Tighten(e.Constraints)
			if e.ToPrincipal == actor {
				return true, cons, nil
			}
			queue = append(queue, queueItem{e.ToPrincipal, current.depth + 1, cons})
		}
	}
	return false, Constraints{}, nil
}

// #endregion authorize

// #region edges-for
// EdgesFor returns every edge touching a principal, revoked included, for
// inspection tooling.
func (g *Graph) EdgesFor(principalID string) ([]Edge, error) {
	rows, err := g.db.Query(
		`SELECT id, from_principal, to_principal, scope, constraints_json, created_at, revoked_at
		 FROM delegation_edges
		 WHERE from_principal = ? OR to_principal = ?
		 ORDER BY created_at`,
		principalID, principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("edges for %s: %w", principalID, err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var consJSON, revokedStr sql.NullString
		var createdStr string
		if err := rows.Scan(&e.ID, &e.FromPrincipal, &e.ToPrincipal, &e.Scope, &consJSON, &createdStr, &revokedStr); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if consJSON.Valid && consJSON.String != "" {
			if err := json.Unmarshal([]byte(consJSON.String), &e.Constraints); err != nil {
				return nil, fmt.Errorf("unmarshal constraints: %w", err)
			}
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		if revokedStr.Valid {
			t, _ := time.Parse(time.RFC3339Nano, revokedStr.String)
			e.RevokedAt = &t
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// #endregion edges-for
