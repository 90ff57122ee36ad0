package principal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS principals (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	active        INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store is the root persistence handle. It owns the principals table and
// hands the shared connection to the other stores via DB().
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens the SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by the other stores
// (delegation edges, tokens, trust, audit).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region create
// Create inserts a new active principal and returns it.
func (s *Store) Create(kind Kind, displayName string) (Principal, error) {
	if !kind.Valid() {
		return Principal{}, fmt.Errorf("invalid principal kind %q", kind)
	}
	p := Principal{
		ID:          uuid.New().String(),
		Kind:        kind,
		DisplayName: displayName,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO principals (id, kind, display_name, active, created_at)
		 VALUES (?, ?, ?, 1, ?)`,
		p.ID, string(p.Kind), p.DisplayName, p.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("insert principal: %w", err)
	}
	return p, nil
}

// #endregion create

// #region get
// Get retrieves a principal by ID.
func (s *Store) Get(id string) (Principal, error) {
	var p Principal
	var kind string
	var active int
	var createdStr string

	err := s.db.QueryRow(
		`SELECT id, kind, display_name, active, created_at FROM principals WHERE id = ?`, id,
	).Scan(&p.ID, &kind, &p.DisplayName, &active, &createdStr)
	if err != nil {
		return Principal{}, fmt.Errorf("get principal %s: %w", id, err)
	}
	p.Kind = Kind(kind)
	p.Active = active == 1
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return p, nil
}

// #endregion get

// #region is-active
// IsActive reports whether the principal exists and has not been deactivated.
// Any lookup failure reports false (fail closed).
func (s *Store) IsActive(id string) bool {
	var active int
	err := s.db.QueryRow(`SELECT active FROM principals WHERE id = ?`, id).Scan(&active)
	if err != nil {
		return false
	}
	return active == 1
}

// #endregion is-active

// #region deactivate
// Deactivate marks a principal inactive. The row is never removed.
func (s *Store) Deactivate(id string) error {
	res, err := s.db.Exec(`UPDATE principals SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate principal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate principal: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("principal %s not found", id)
	}
	return nil
}

// #endregion deactivate

// #region list
// List returns all principals ordered by creation time.
func (s *Store) List() ([]Principal, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, display_name, active, created_at FROM principals ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var out []Principal
	for rows.Next() {
		var p Principal
		var kind string
		var active int
		var createdStr string
		if err := rows.Scan(&p.ID, &kind, &p.DisplayName, &active, &createdStr); err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		p.Kind = Kind(kind)
		p.Active = active == 1
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, p)
	}
	return out, rows.Err()
}

// #endregion list
