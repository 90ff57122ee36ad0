package confidence

// #region verdict-kind
// VerdictKind is the outcome of one gate evaluation.
type VerdictKind string

const (
	VerdictAllow        VerdictKind = "allow"
	VerdictRequireHuman VerdictKind = "require_human"
	VerdictDeny         VerdictKind = "deny"
)

// #endregion verdict-kind

// #region verdict
// Verdict is the ephemeral result of evaluating one proposed tool call.
// It is an input to the execution gate, not a persisted entity.
type Verdict struct {
	Score   float64
	Verdict VerdictKind
	Reason  string
	Scope   string // tool scope from the registry, "" when denied as unknown
}

// #endregion verdict

// #region config
// Config holds the fixed policy constants. Thresholds are not derived per
// call; keeping them constant keeps every decision auditable.
type Config struct {
	DenyBelow   float64 // score below this → deny
	AllowFrom   float64 // score at or above this → allow
	TrustWeight float64 // how far trust can shift the base score
}

// DefaultConfig returns the policy constants. The trust weight is sized so
// the maximum boost (+TrustWeight/2) cannot lift a writes_required base
// across the allow threshold on its own.
func DefaultConfig() Config {
	return Config{
		DenyBelow:   0.6,
		AllowFrom:   0.85,
		TrustWeight: 0.2,
	}
}

// #endregion config
