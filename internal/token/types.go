package token

import (
	"errors"
	"time"
)

// #region state
// State is the execution token lifecycle. issued is the only live state;
// consumed, expired, and revoked are terminal.
type State string

const (
	StateIssued   State = "issued"
	StateConsumed State = "consumed"
	StateExpired  State = "expired"
	StateRevoked  State = "revoked"
)

// #endregion state

// #region token
// Token is a single-use permission slip binding one intent to one principal.
// It exists only after an explicit human confirmation or a valid delegation
// path; the action executor consumes it exactly once before acting.
type Token struct {
	ID             string
	PrincipalID    string
	IntentType     string
	State          State
	IssuedAt       time.Time
	ExpiresAt      time.Time
	ConsumedAt     *time.Time
	ConfirmationID string // "" for delegation-issued tokens
	TurnID         string
	Signed         string // compact JWT wire form
}

// #endregion token

// #region errors
var (
	// ErrNotFound means no token row matches the given ID.
	ErrNotFound = errors.New("token not found")
	// ErrDuplicateConfirmation means the confirmation event already minted a token.
	ErrDuplicateConfirmation = errors.New("confirmation already used")
)

// #endregion errors
