package readiness

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucenlabs/aria/autonomy-gate/internal/delegation"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS readiness_candidates (
	id               TEXT PRIMARY KEY,
	actor_principal  TEXT NOT NULL,
	target_principal TEXT,
	scope            TEXT NOT NULL,
	constraints_json TEXT,
	support          REAL NOT NULL DEFAULT 0,
	shown_count      INTEGER NOT NULL DEFAULT 0,
	last_shown_at    TEXT,
	accepted_at      TEXT,
	dismissed_at     TEXT,
	created_at       TEXT NOT NULL,
	UNIQUE(actor_principal, target_principal, scope)
);
`

// #endregion schema

// #region engine
// Engine proposes new delegation edges from observed activity, with a show
// cap and cooldown so the same unaccepted candidate is not pushed at the
// user again and again. Accepted candidates become real edges.
type Engine struct {
	db     *sql.DB
	graph  *delegation.Graph
	config Config
	logger *zap.Logger
}

// NewEngine initializes the readiness_candidates table.
func NewEngine(db *sql.DB, graph *delegation.Graph, config Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("readiness schema: %w", err)
	}
	return &Engine{db: db, graph: graph, config: config, logger: logger}, nil
}

// #endregion engine

// #region observe
// Observe ingests one recurring-pattern signal from the detection
// collaborator: actor repeatedly confirmed target doing scope. Support
// accumulates on an existing open candidate or creates a new one.
func (e *Engine) Observe(actor, target, scope string, constraints delegation.Constraints, weight float64) error {
	if actor == "" || scope == "" {
		return fmt.Errorf("observe: empty actor or scope")
	}
	if weight <= 0 {
		weight = 1.0
	}
	consJSON, err := json.Marshal(constraints)
	if err != nil {
		return fmt.Errorf("marshal constraints: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = e.db.Exec(
		`INSERT INTO readiness_candidates (id, actor_principal, target_principal, scope, constraints_json, support, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(actor_principal, target_principal, scope) DO UPDATE SET
		   support = readiness_candidates.support + ?,
		   constraints_json = excluded.constraints_json
		 WHERE accepted_at IS NULL AND dismissed_at IS NULL`,
		uuid.New().String(), actor, target, scope, string(consJSON), weight, now,
		weight,
	)
	if err != nil {
		return fmt.Errorf("observe candidate: %w", err)
	}
	return nil
}

// #endregion observe

// #region scan
// Scan returns the candidates currently worth surfacing to the user:
// undecided, enough support, under the show cap, cooldown elapsed. Each
// returned candidate is stamped as shown.
func (e *Engine) Scan(userID string) ([]Candidate, error) {
	// Second-precision RFC3339 keeps the SQL string comparison on
	// last_shown_at well ordered (nano format trims trailing zeros).
	now := time.Now().UTC()
	cutoff := now.Add(-e.config.Cooldown).Format(time.RFC3339)

	rows, err := e.db.Query(
		`SELECT id, actor_principal, target_principal, scope, constraints_json, support, shown_count, last_shown_at, accepted_at, dismissed_at, created_at
		 FROM readiness_candidates
		 WHERE actor_principal = ?
		   AND accepted_at IS NULL AND dismissed_at IS NULL
		   AND support >= ?
		   AND shown_count < ?
		   AND (last_shown_at IS NULL OR last_shown_at <= ?)
		 ORDER BY support DESC`,
		userID, e.config.MinSupport, e.config.MaxShown, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	candidates, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	nowStr := now.Format(time.RFC3339)
	for i := range candidates {
		_, err := e.db.Exec(
			`UPDATE readiness_candidates SET shown_count = shown_count + 1, last_shown_at = ? WHERE id = ?`,
			nowStr, candidates[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("stamp shown: %w", err)
		}
		candidates[i].ShownCount++
		t := now
		candidates[i].LastShownAt = &t
	}
	return candidates, nil
}

// #endregion scan

// #region accept
// Accept turns an undecided candidate into a real delegation edge built
// from its scope and constraints. A candidate is accepted at most once;
// accepted and dismissed are mutually exclusive.
func (e *Engine) Accept(candidateID string) (delegation.Edge, error) {
	c, err := e.Get(candidateID)
	if err != nil {
		return delegation.Edge{}, err
	}
	if c.Terminal() {
		return delegation.Edge{}, ErrCandidateDecided
	}
	if c.TargetPrincipal == "" {
		return delegation.Edge{}, ErrCandidateUnresolved
	}

	// Claim the candidate first; the guard keeps two concurrent accepts
	// from both minting an edge.
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := e.db.Exec(
		`UPDATE readiness_candidates SET accepted_at = ?
		 WHERE id = ? AND accepted_at IS NULL AND dismissed_at IS NULL`,
		now, candidateID,
	)
	if err != nil {
		return delegation.Edge{}, fmt.Errorf("accept candidate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return delegation.Edge{}, fmt.Errorf("accept candidate: %w", err)
	}
	if n == 0 {
		return delegation.Edge{}, ErrCandidateDecided
	}

	edge, err := e.graph.Grant(c.ActorPrincipal, c.TargetPrincipal, c.Scope, c.Constraints)
	if err != nil {
		return delegation.Edge{}, fmt.Errorf("grant from candidate: %w", err)
	}

	e.logger.Info("readiness candidate accepted",
		zap.String("candidate", candidateID),
		zap.String("edge", edge.ID),
		zap.String("scope", c.Scope),
	)
	return edge, nil
}

// #endregion accept

// #region dismiss
// Dismiss records negative feedback without creating an edge. Support is
// halved so a later burst of activity has to rebuild the case.
func (e *Engine) Dismiss(candidateID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := e.db.Exec(
		`UPDATE readiness_candidates SET dismissed_at = ?, support = support / 2
		 WHERE id = ? AND accepted_at IS NULL AND dismissed_at IS NULL`,
		now, candidateID,
	)
	if err != nil {
		return fmt.Errorf("dismiss candidate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("dismiss candidate: %w", err)
	}
	if n == 0 {
		if _, getErr := e.Get(candidateID); getErr != nil {
			return getErr
		}
		return ErrCandidateDecided
	}
	return nil
}

// #endregion dismiss

// #region get
// Get retrieves one candidate by ID.
func (e *Engine) Get(candidateID string) (Candidate, error) {
	rows, err := e.db.Query(
		`SELECT id, actor_principal, target_principal, scope, constraints_json, support, shown_count, last_shown_at, accepted_at, dismissed_at, created_at
		 FROM readiness_candidates WHERE id = ?`, candidateID,
	)
	if err != nil {
		return Candidate{}, fmt.Errorf("get candidate: %w", err)
	}
	candidates, err := scanRows(rows)
	if err != nil {
		return Candidate{}, err
	}
	if len(candidates) == 0 {
		return Candidate{}, ErrCandidateNotFound
	}
	return candidates[0], nil
}

// ForUser returns every candidate for one actor, decided included.
func (e *Engine) ForUser(userID string) ([]Candidate, error) {
	rows, err := e.db.Query(
		`SELECT id, actor_principal, target_principal, scope, constraints_json, support, shown_count, last_shown_at, accepted_at, dismissed_at, created_at
		 FROM readiness_candidates WHERE actor_principal = ? ORDER BY created_at`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("candidates for %s: %w", userID, err)
	}
	return scanRows(rows)
}

// #endregion get

// #region scan-rows
func scanRows(rows *sql.Rows) ([]Candidate, error) {
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var target, consJSON, lastShown, accepted, dismissed sql.NullString
		var createdStr string
		if err := rows.Scan(&c.ID, &c.ActorPrincipal, &target, &c.Scope, &consJSON,
			&c.Support, &c.ShownCount, &lastShown, &accepted, &dismissed, &createdStr); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.TargetPrincipal = target.String
		if consJSON.Valid && consJSON.String != "" {
			if err := json.Unmarshal([]byte(consJSON.String), &c.Constraints); err != nil {
				return nil, fmt.Errorf("unmarshal constraints: %w", err)
			}
		}
		c.LastShownAt = parseNullTime(lastShown)
		c.AcceptedAt = parseNullTime(accepted)
		c.DismissedAt = parseNullTime(dismissed)
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, c)
	}
	return out, rows.Err()
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// #endregion scan-rows
