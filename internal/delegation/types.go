package delegation

import (
	"time"

	"github.com/shopspring/decimal"
)

// #region constraints
// Constraints are the structured limits attached to a delegation edge.
// A zero Constraints imposes no limits.
type Constraints struct {
	MaxAmount decimal.Decimal `json:"max_amount,omitempty"` // per-action spend cap, zero = unlimited
	MaxPerDay int             `json:"max_per_day,omitempty"` // actions per day, zero = unlimited
}

// PermitsAmount reports whether an action of the given amount stays within
// the spend cap.
func (c Constraints) PermitsAmount(amount decimal.Decimal) bool {
	if c.MaxAmount.IsZero() {
		return true
	}
	return amount.LessThanOrEqual(c.MaxAmount)
}

// Tighten merges two constraint sets, keeping the stricter limit on each
// axis. Used when an authorization path crosses more than one edge.
func (c Constraints) Tighten(other Constraints) Constraints {
	out := c
	if out.MaxAmount.IsZero() || (!other.MaxAmount.IsZero() && other.MaxAmount.LessThan(out.MaxAmount)) {
		out.MaxAmount = other.MaxAmount
	}
	if out.MaxPerDay == 0 || (other.MaxPerDay != 0 && other.MaxPerDay < out.MaxPerDay) {
		out.MaxPerDay = other.MaxPerDay
	}
	return out
}

// #endregion constraints

// #region edge
// Edge is a directed, scoped, revocable authorization: FromPrincipal lets
// ToPrincipal act within Scope. Revocation is logical; rows are never
// removed (audit requirement). A revoked edge participates in no decision.
type Edge struct {
	ID            string
	FromPrincipal string
	ToPrincipal   string
	Scope         string
	Constraints   Constraints
	CreatedAt     time.Time
	RevokedAt     *time.Time
}

// #endregion edge
