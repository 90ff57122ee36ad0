package confidence

import (
	"fmt"

	"github.com/lucenlabs/aria/autonomy-gate/internal/registry"
)

// #region trust-reader
// TrustReader is the only external dependency of the gate: the current
// trust score for a (principal, domain) pair.
type TrustReader interface {
	Get(principalID, domain string) (float64, error)
}

// #endregion trust-reader

// #region gate
// Gate classifies a proposed tool call by risk. Evaluate never panics and
// performs no side effects; every failure path resolves to a verdict, and
// every unresolved lookup resolves to the most restrictive one.
type Gate struct {
	registry *registry.Registry
	trust    TrustReader
	config   Config
}

// NewGate creates a gate over a validated registry and a trust reader.
func NewGate(reg *registry.Registry, trust TrustReader, config Config) *Gate {
	return &Gate{registry: reg, trust: trust, config: config}
}

// #endregion gate

// #region evaluate
// Evaluate scores one proposed call of toolID on behalf of principalID.
//
// Unknown tools are denied outright. The effect class sets the base score;
// trust shifts the score around neutral but never moves the thresholds or
// overrides the registry floor.
func (g *Gate) Evaluate(toolID, principalID string) Verdict {
	entry, ok := g.registry.Lookup(toolID)
	if !ok {
		return Verdict{
			Score:   0,
			Verdict: VerdictDeny,
			Reason:  fmt.Sprintf("tool %q not in allowlist", toolID),
		}
	}

	base := entry.EffectClass.BaseScore()

	trustScore, err := g.trust.Get(principalID, entry.Scope)
	if err != nil {
		// Storage trouble is never a reason to act.
		return Verdict{
			Score:   0,
			Verdict: VerdictDeny,
			Reason:  fmt.Sprintf("trust lookup failed: %v", err),
			Scope:   entry.Scope,
		}
	}

	score := base + g.config.TrustWeight*(trustScore-0.5)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	// Registry floor: checked against the base, so trust alone can never
	// lift a tool out of the confirmation path.
	if entry.ConfidenceFloor > 0 && base < entry.ConfidenceFloor {
		return Verdict{
			Score:   score,
			Verdict: VerdictRequireHuman,
			Reason: fmt.Sprintf("base score %.2f below confidence floor %.2f for %s",
				base, entry.ConfidenceFloor, toolID),
			Scope: entry.Scope,
		}
	}

	switch {
	case score < g.config.DenyBelow:
		return Verdict{
			Score:   score,
			Verdict: VerdictDeny,
			Reason:  fmt.Sprintf("score %.2f below deny threshold %.2f", score, g.config.DenyBelow),
			Scope:   entry.Scope,
		}
	case score < g.config.AllowFrom:
		return Verdict{
			Score:   score,
			Verdict: VerdictRequireHuman,
			Reason:  fmt.Sprintf("score %.2f requires human confirmation", score),
			Scope:   entry.Scope,
		}
	default:
		return Verdict{
			Score:   score,
			Verdict: VerdictAllow,
			Reason:  fmt.Sprintf("score %.2f clears allow threshold %.2f", score, g.config.AllowFrom),
			Scope:   entry.Scope,
		}
	}
}

// #endregion evaluate
