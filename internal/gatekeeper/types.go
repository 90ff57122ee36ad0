package gatekeeper

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// #region confirmation
// Confirmation is an explicit human approval event, captured by the UI
// collaborator before the gate is asked for a token. One confirmation
// mints at most one token.
type Confirmation struct {
	ID          string
	ConfirmedBy string
	At          time.Time
}

// #endregion confirmation

// #region request
// Request asks for permission to run one tool call.
//
// UserID is the principal on whose behalf the action runs (and whose
// trust and delegations apply). ActorID is the acting principal, usually
// the assistant agent; empty means the user acts directly. Amount is the
// monetary size of the action when one applies, checked against
// delegation spend caps on the silent path.
type Request struct {
	UserID       string
	ActorID      string
	ToolID       string
	TurnID       string
	Amount       decimal.Decimal
	Confirmation *Confirmation
}

// Actor returns the acting principal, defaulting to the user.
func (r Request) Actor() string {
	if r.ActorID != "" {
		return r.ActorID
	}
	return r.UserID
}

// #endregion request

// #region errors
var (
	// ErrDenied means the confidence gate refused the call outright.
	ErrDenied = errors.New("request denied")
	// ErrConfirmationRequired means no delegation covers the call and no
	// human confirmation was attached.
	ErrConfirmationRequired = errors.New("human confirmation required")
	// ErrPrincipalInactive means the user or actor is unknown or deactivated.
	ErrPrincipalInactive = errors.New("principal inactive")
	// ErrBadConfirmation means the attached confirmation is malformed or
	// was given by someone other than the user.
	ErrBadConfirmation = errors.New("invalid confirmation")
)

// #endregion errors
