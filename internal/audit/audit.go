package audit

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	principal_id  TEXT NOT NULL,
	actor_id      TEXT,
	tool_id       TEXT NOT NULL,
	verdict       TEXT NOT NULL,
	score         REAL NOT NULL DEFAULT 0,
	decision      TEXT NOT NULL,
	reason        TEXT,
	token_id      TEXT,
	turn_id       TEXT,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region entry
// Entry is one append-only audit row: who asked for what, what the gate
// said, and what happened to the token.
type Entry struct {
	PrincipalID string
	ActorID     string
	ToolID      string
	Verdict     string
	Score       float64
	Decision    string // "token_issued" | "auto_authorized" | "denied" | "confirmation_required" | "token_consumed" | "token_refused" | "token_revoked"
	Reason      string
	TokenID     string
	TurnID      string
	CreatedAt   time.Time
}

// #endregion entry

// #region init
// Init creates the audit_log table.
func Init(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("audit schema: %w", err)
	}
	return nil
}

// #endregion init

// #region log
// Log appends an audit entry.
func Log(db *sql.DB, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO audit_log (principal_id, actor_id, tool_id, verdict, score, decision, reason, token_id, turn_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.PrincipalID,
		nullIfEmpty(entry.ActorID),
		entry.ToolID,
		entry.Verdict,
		entry.Score,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.TokenID),
		nullIfEmpty(entry.TurnID),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log audit entry: %w", err)
	}
	return nil
}

// #endregion log

// #region recent
// Recent returns the newest audit entries, newest first.
func Recent(db *sql.DB, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT principal_id, actor_id, tool_id, verdict, score, decision, reason, token_id, turn_id, created_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var actorID, reason, tokenID, turnID sql.NullString
		var createdStr string
		if err := rows.Scan(&e.PrincipalID, &actorID, &e.ToolID, &e.Verdict, &e.Score, &e.Decision, &reason, &tokenID, &turnID, &createdStr); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.ActorID = actorID.String
		e.Reason = reason.String
		e.TokenID = tokenID.String
		e.TurnID = turnID.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion recent

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
