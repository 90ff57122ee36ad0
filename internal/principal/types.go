package principal

import "time"

// #region kind
// Kind enumerates the actor categories in the authorization graph.
type Kind string

const (
	KindHuman Kind = "human"
	KindAgent Kind = "agent"
	KindGroup Kind = "group"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindHuman, KindAgent, KindGroup:
		return true
	}
	return false
}

// #endregion kind

// #region principal
// Principal is an actor that can hold or grant authorization.
// Principals are never deleted, only deactivated.
type Principal struct {
	ID          string
	Kind        Kind
	DisplayName string
	Active      bool
	CreatedAt   time.Time
}

// #endregion principal
