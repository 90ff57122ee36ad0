package token

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS execution_tokens (
	id               TEXT PRIMARY KEY,
	principal_id     TEXT NOT NULL,
	intent_type      TEXT NOT NULL,
	state            TEXT NOT NULL,
	issued_at        TEXT NOT NULL,
	expires_at       TEXT NOT NULL,
	consumed_at      TEXT,
	confirmation_id  TEXT UNIQUE,
	turn_id          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tokens_turn ON execution_tokens(turn_id, state);
`

// #endregion schema

// #region claims
// Claims is the signed wire form of a token: jti carries the token ID,
// sub the principal, intent the bound intent type.
type Claims struct {
	jwt.RegisteredClaims
	Intent string `json:"intent"`
}

// #endregion claims

// #region store
// Store persists execution tokens and enforces the single-consume state
// machine in SQL, so verify-then-consume is one atomic operation rather
// than a check followed by an act.
type Store struct {
	db         *sql.DB
	signingKey []byte
	ttl        time.Duration
}

// NewStore initializes the execution_tokens table. signingKey signs the
// JWT wire form; ttl bounds how long an unconsumed token stays valid.
func NewStore(db *sql.DB, signingKey []byte, ttl time.Duration) (*Store, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("empty signing key")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("non-positive token ttl")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("token schema: %w", err)
	}
	return &Store{db: db, signingKey: signingKey, ttl: ttl}, nil
}

// #endregion store

// #region issue
// Issue mints a single-use token for one intent. confirmationID is "" for
// delegation-issued tokens. A non-empty confirmation may mint at most one
// token; the unique index closes the duplicate-confirmation race.
func (s *Store) Issue(principalID, intentType, confirmationID, turnID string) (Token, error) {
	now := time.Now().UTC()
	// Second-precision expiry keeps the SQL string comparison in Consume
	// well ordered (nano format trims trailing zeros).
	tok := Token{
		ID:             uuid.New().String(),
		PrincipalID:    principalID,
		IntentType:     intentType,
		State:          StateIssued,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.ttl).Truncate(time.Second),
		ConfirmationID: confirmationID,
		TurnID:         turnID,
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tok.ID,
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(tok.ExpiresAt),
			Issuer:    "aria/autonomy-gate",
		},
		Intent: intentType,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	tok.Signed = signed

	var confirmationPtr interface{}
	if confirmationID != "" {
		confirmationPtr = confirmationID
	}

	_, err = s.db.Exec(
		`INSERT INTO execution_tokens (id, principal_id, intent_type, state, issued_at, expires_at, confirmation_id, turn_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tok.ID, principalID, intentType, string(StateIssued),
		now.Format(time.RFC3339Nano), tok.ExpiresAt.Format(time.RFC3339),
		confirmationPtr, turnID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Token{}, ErrDuplicateConfirmation
		}
		return Token{}, fmt.Errorf("insert token: %w", err)
	}
	return tok, nil
}

// isUniqueViolation unwraps to the driver error and checks the unique
// constraint result code.
func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	return errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// #endregion issue

// #region consume
// Consume atomically transitions issued → consumed when the token ID, the
// intent type, and the expiry all check out. Returns false for any
// mismatch: wrong intent, already consumed, expired, revoked, unknown.
// A false return means the caller must not perform the side effect.
func (s *Store) Consume(tokenID, intentType string) bool {
	now := time.Now().UTC()
	// Cutoff matches the second-precision expires_at format set in Issue.
	cutoff := now.Format(time.RFC3339)

	res, err := s.db.Exec(
		`UPDATE execution_tokens
		 SET state = ?, consumed_at = ?
		 WHERE id = ? AND intent_type = ? AND state = ? AND expires_at > ?`,
		string(StateConsumed), now.Format(time.RFC3339Nano),
		tokenID, intentType, string(StateIssued), cutoff,
	)
	if err != nil {
		return false
	}
	n, err := res.RowsAffected()
	if err != nil || n != 1 {
		// Mark passive TTL expiry while we are here; purely bookkeeping,
		// the guard above already refused the expired token.
		s.db.Exec(
			`UPDATE execution_tokens SET state = ? WHERE id = ? AND state = ? AND expires_at <= ?`,
			string(StateExpired), tokenID, string(StateIssued), cutoff,
		)
		return false
	}
	return true
}

// ParseSigned verifies the JWT wire form (signature, expiry claim) and
// returns its claims. The token row is not touched.
func (s *Store) ParseSigned(signed string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse signed token: %w", err)
	}
	if !tok.Valid {
		return nil, fmt.Errorf("signed token not valid")
	}
	return claims, nil
}

// ConsumeSigned verifies the JWT wire form first (signature, expiry, intent
// claim), then consumes by the embedded token ID.
func (s *Store) ConsumeSigned(signed, intentType string) bool {
	claims, err := s.ParseSigned(signed)
	if err != nil || claims.Intent != intentType {
		return false
	}
	return s.Consume(claims.ID, intentType)
}

// #endregion consume

// #region revoke
// Revoke transitions issued → revoked (explicit cancel before use).
func (s *Store) Revoke(tokenID string) error {
	res, err := s.db.Exec(
		`UPDATE execution_tokens SET state = ? WHERE id = ? AND state = ?`,
		string(StateRevoked), tokenID, string(StateIssued),
	)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("token %s not issued or already terminal", tokenID)
	}
	return nil
}

// #endregion revoke

// #region get
// Get retrieves a token row by ID.
func (s *Store) Get(tokenID string) (Token, error) {
	var tok Token
	var state, issuedStr, expiresStr string
	var consumedStr, confirmationID sql.NullString

	err := s.db.QueryRow(
		`SELECT id, principal_id, intent_type, state, issued_at, expires_at, consumed_at, confirmation_id, turn_id
		 FROM execution_tokens WHERE id = ?`, tokenID,
	).Scan(&tok.ID, &tok.PrincipalID, &tok.IntentType, &state, &issuedStr, &expiresStr, &consumedStr, &confirmationID, &tok.TurnID)
	if err == sql.ErrNoRows {
		return Token{}, ErrNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("get token %s: %w", tokenID, err)
	}

	tok.State = State(state)
	tok.IssuedAt, _ = time.Parse(time.RFC3339Nano, issuedStr)
	tok.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresStr)
	if consumedStr.Valid {
		t, _ := time.Parse(time.RFC3339Nano, consumedStr.String)
		tok.ConsumedAt = &t
	}
	if confirmationID.Valid {
		tok.ConfirmationID = confirmationID.String
	}
	return tok, nil
}

// #endregion get

// #region consumed-intents
// ConsumedIntents returns the intent types consumed within one turn. The
// agency validator uses this to check claimed actions against reality.
func (s *Store) ConsumedIntents(turnID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT intent_type FROM execution_tokens WHERE turn_id = ? AND state = ?`,
		turnID, string(StateConsumed),
	)
	if err != nil {
		return nil, fmt.Errorf("consumed intents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var intent string
		if err := rows.Scan(&intent); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		out = append(out, intent)
	}
	return out, rows.Err()
}

// #endregion consumed-intents

// #region sweep
// SweepExpired marks overdue issued tokens as expired and reports how many
// rows transitioned. Hygiene only: Consume refuses overdue tokens whether
// or not the sweep has run.
func (s *Store) SweepExpired() (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`UPDATE execution_tokens SET state = ? WHERE state = ? AND expires_at <= ?`,
		string(StateExpired), string(StateIssued), now,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	return res.RowsAffected()
}

// #endregion sweep
