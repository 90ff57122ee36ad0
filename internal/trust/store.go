package trust

import (
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS trust_profiles (
	principal_id  TEXT NOT NULL,
	domain        TEXT NOT NULL,
	score         REAL NOT NULL,
	updated_at    TEXT NOT NULL,
	PRIMARY KEY (principal_id, domain)
);

CREATE TABLE IF NOT EXISTS trust_adjustments (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	principal_id  TEXT NOT NULL,
	domain        TEXT NOT NULL,
	delta         REAL NOT NULL,
	score_after   REAL NOT NULL,
	reason        TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region constants
// DefaultScore is the neutral trust assigned on first evaluation.
const DefaultScore = 0.5

// #endregion constants

// #region types
// Profile is the per-(principal, domain) calibration score.
type Profile struct {
	PrincipalID string
	Domain      string
	Score       float64
	UpdatedAt   time.Time
}

// AdjustmentRecord is one applied delta from the history.
type AdjustmentRecord struct {
	PrincipalID string
	Domain      string
	Delta       float64
	ScoreAfter  float64
	Reason      string
	CreatedAt   time.Time
}

// #endregion types

// #region store
// Store persists trust profiles and their adjustment history in SQLite.
// Apply serializes read-modify-write per (principal, domain) key so two
// concurrent outcome recordings cannot lose an adjustment.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore initializes the trust tables over an existing connection.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("trust schema: %w", err)
	}
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// keyLock returns the mutex guarding one (principal, domain) pair.
func (s *Store) keyLock(principalID, domain string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := principalID + "|" + domain
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// #endregion store

// #region get
// Get returns the trust score for (principal, domain), creating the profile
// lazily at the neutral default on first read.
func (s *Store) Get(principalID, domain string) (float64, error) {
	var score float64
	err := s.db.QueryRow(
		`SELECT score FROM trust_profiles WHERE principal_id = ? AND domain = ?`,
		principalID, domain,
	).Scan(&score)
	if err == sql.ErrNoRows {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		_, err = s.db.Exec(
			`INSERT INTO trust_profiles (principal_id, domain, score, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(principal_id, domain) DO NOTHING`,
			principalID, domain, DefaultScore, now,
		)
		if err != nil {
			return 0, fmt.Errorf("init profile: %w", err)
		}
		return DefaultScore, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get trust %s/%s: %w", principalID, domain, err)
	}
	return score, nil
}

// #endregion get

// #region apply
// Apply adds delta to the profile score, clamps to [0,1], and appends a
// history row. Returns the score after the adjustment.
func (s *Store) Apply(principalID, domain string, delta float64, reason string) (float64, error) {
	l := s.keyLock(principalID, domain)
	l.Lock()
	defer l.Unlock()

	current, err := s.Get(principalID, domain)
	if err != nil {
		return 0, err
	}

	next := current + delta
	if next < 0 {
		next = 0
	}
	if next > 1 {
		next = 1
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE trust_profiles SET score = ?, updated_at = ? WHERE principal_id = ? AND domain = ?`,
		next, now, principalID, domain,
	)
	if err != nil {
		return 0, fmt.Errorf("update trust: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO trust_adjustments (principal_id, domain, delta, score_after, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		principalID, domain, delta, next, reason, now,
	)
	if err != nil {
		return 0, fmt.Errorf("append adjustment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

// #endregion apply

// #region history
// History returns the most recent adjustments for a profile, newest first.
func (s *Store) History(principalID, domain string, limit int) ([]AdjustmentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT principal_id, domain, delta, score_after, reason, created_at
		 FROM trust_adjustments
		 WHERE principal_id = ? AND domain = ?
		 ORDER BY id DESC LIMIT ?`,
		principalID, domain, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("trust history: %w", err)
	}
	defer rows.Close()

	var out []AdjustmentRecord
	for rows.Next() {
		var rec AdjustmentRecord
		var createdStr string
		if err := rows.Scan(&rec.PrincipalID, &rec.Domain, &rec.Delta, &rec.ScoreAfter, &rec.Reason, &createdStr); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion history

// #region profiles
// Profiles returns all trust profiles, for inspection tooling.
func (s *Store) Profiles() ([]Profile, error) {
	rows, err := s.db.Query(
		`SELECT principal_id, domain, score, updated_at FROM trust_profiles ORDER BY principal_id, domain`,
	)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		var updatedStr string
		if err := rows.Scan(&p.PrincipalID, &p.Domain, &p.Score, &updatedStr); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
		out = append(out, p)
	}
	return out, rows.Err()
}

// #endregion profiles
