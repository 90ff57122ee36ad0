package outcome

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lucenlabs/aria/autonomy-gate/internal/trust"
)

// #region types
// Outcome describes how a gated action ended.
type Outcome struct {
	Success            bool
	Error              string
	InterruptedByUser  bool
	DurationMS         int64
	ExpectedDurationMS int64 // 0 when no expectation is known
}

// Adjustment is the trust delta derived from one outcome. Advisory only:
// it shifts the input score of future evaluations, never the gate's
// thresholds.
type Adjustment struct {
	Delta  float64
	Reason string
}

// #endregion types

// #region deltas
const (
	// deltaInterrupted is the strongest negative signal: an explicit human
	// override means the system's confidence and the user's actual trust
	// were miscalibrated.
	deltaInterrupted = -0.5
	deltaFailure     = -0.2
	deltaSlowSuccess = 0.05
	deltaSuccess     = 0.1
)

// #endregion deltas

// #region evaluate
// Evaluate computes a trust adjustment from an observed outcome.
// Priority: user interrupt beats failure beats slow success beats success.
func Evaluate(o Outcome) Adjustment {
	if o.InterruptedByUser {
		return Adjustment{
			Delta:  deltaInterrupted,
			Reason: "interrupted by user",
		}
	}
	if !o.Success {
		reason := "action failed"
		if o.Error != "" {
			reason = fmt.Sprintf("action failed: %s", o.Error)
		}
		return Adjustment{Delta: deltaFailure, Reason: reason}
	}
	if o.ExpectedDurationMS > 0 && o.DurationMS > 2*o.ExpectedDurationMS {
		return Adjustment{
			Delta: deltaSlowSuccess,
			Reason: fmt.Sprintf("succeeded but took %dms against %dms expected",
				o.DurationMS, o.ExpectedDurationMS),
		}
	}
	return Adjustment{Delta: deltaSuccess, Reason: "clean success"}
}

// #endregion evaluate

// #region recorder
// Recorder closes the feedback loop: it evaluates outcomes and applies the
// adjustment to the trust store.
type Recorder struct {
	trust  *trust.Store
	logger *zap.Logger
}

// NewRecorder wires the evaluator to a trust store.
func NewRecorder(trustStore *trust.Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{trust: trustStore, logger: logger}
}

// Record evaluates the outcome and writes the adjustment to the
// (principal, domain) trust profile. Returns the adjustment and the score
// after it was applied.
func (r *Recorder) Record(principalID, domain string, o Outcome) (Adjustment, float64, error) {
	adj := Evaluate(o)
	after, err := r.trust.Apply(principalID, domain, adj.Delta, adj.Reason)
	if err != nil {
		return adj, 0, fmt.Errorf("apply adjustment: %w", err)
	}

	r.logger.Info("trust adjusted",
		zap.String("principal", principalID),
		zap.String("domain", domain),
		zap.Float64("delta", adj.Delta),
		zap.Float64("score_after", after),
		zap.String("reason", adj.Reason),
	)
	return adj, after, nil
}

// #endregion recorder
