package readiness

import (
	"errors"
	"time"

	"github.com/lucenlabs/aria/autonomy-gate/internal/delegation"
)

// #region candidate
// Candidate is a system-proposed, not-yet-accepted delegation edge.
// AcceptedAt and DismissedAt are mutually exclusive and terminal.
type Candidate struct {
	ID              string
	ActorPrincipal  string // the grantor-to-be (the user)
	TargetPrincipal string // the grantee-to-be, "" until resolved
	Scope           string
	Constraints     delegation.Constraints
	Support         float64
	ShownCount      int
	LastShownAt     *time.Time
	AcceptedAt      *time.Time
	DismissedAt     *time.Time
	CreatedAt       time.Time
}

// Terminal reports whether the candidate has already been decided.
func (c Candidate) Terminal() bool {
	return c.AcceptedAt != nil || c.DismissedAt != nil
}

// #endregion candidate

// #region config
// Config caps how often an unaccepted candidate is pushed at the user.
type Config struct {
	MinSupport float64       // support needed before surfacing
	MaxShown   int           // lifetime surfacing cap
	Cooldown   time.Duration // wait between re-surfacings
}

// DefaultConfig returns the surfacing policy defaults.
func DefaultConfig() Config {
	return Config{
		MinSupport: 3.0,
		MaxShown:   3,
		Cooldown:   72 * time.Hour,
	}
}

// #endregion config

// #region errors
var (
	// ErrCandidateNotFound means no candidate row matches the given ID.
	ErrCandidateNotFound = errors.New("candidate not found")
	// ErrCandidateDecided means the candidate was already accepted or dismissed.
	ErrCandidateDecided = errors.New("candidate already decided")
	// ErrCandidateUnresolved means the candidate has no target principal yet.
	ErrCandidateUnresolved = errors.New("candidate target not resolved")
)

// #endregion errors
