package gatekeeper

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/lucenlabs/aria/autonomy-gate/internal/audit"
	"github.com/lucenlabs/aria/autonomy-gate/internal/confidence"
	"github.com/lucenlabs/aria/autonomy-gate/internal/delegation"
	"github.com/lucenlabs/aria/autonomy-gate/internal/principal"
	"github.com/lucenlabs/aria/autonomy-gate/internal/token"
)

// #region gatekeeper

// Gatekeeper is the single enforcement chokepoint between a proposed
// action and its side effect. It scores the proposal, consults the
// delegation graph for a pre-authorization, otherwise demands a human
// confirmation, and wraps the eventual call in a single-use token.
//
// The system never performs a side effect as a direct consequence of its
// own proposal: every path to a token runs through either a confirmation
// event or a delegation edge a human granted earlier.
type Gatekeeper struct {
	confidence *confidence.Gate
	graph      *delegation.Graph
	tokens     *token.Store
	principals *principal.Store
	db         *sql.DB
	logger     *zap.Logger
}

// New wires a gatekeeper. db is used for the audit log.
func New(
	confidenceGate *confidence.Gate,
	graph *delegation.Graph,
	tokens *token.Store,
	principals *principal.Store,
	db *sql.DB,
	logger *zap.Logger,
) (*Gatekeeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := audit.Init(db); err != nil {
		return nil, err
	}
	return &Gatekeeper{
		confidence: confidenceGate,
		graph:      graph,
		tokens:     tokens,
		principals: principals,
		db:         db,
		logger:     logger,
	}, nil
}

// #endregion gatekeeper

// #region request

// RequestToken runs the full decision for one proposed call and, when
// permitted, returns the execution token the action code must consume.
//
// Decision order:
//  1. deny verdict → error, no token, ever
//  2. allow verdict + covering delegation (and amount within caps) →
//     silent token, audited as auto-authorized via delegation
//  3. everything else → a prior human confirmation must be attached
func (g *Gatekeeper) RequestToken(req Request) (token.Token, error) {
	actor := req.Actor()
	if !g.principals.IsActive(req.UserID) || !g.principals.IsActive(actor) {
		g.audit(req, "", "", 0, "denied", "principal unknown or deactivated")
		return token.Token{}, fmt.Errorf("%w: %s", ErrPrincipalInactive, actor)
	}

	verdict := g.confidence.Evaluate(req.ToolID, req.UserID)

	if verdict.Verdict == confidence.VerdictDeny {
		g.audit(req, string(verdict.Verdict), "", verdict.Score, "denied", verdict.Reason)
		g.logger.Warn("request denied",
			zap.String("tool", req.ToolID),
			zap.String("user", req.UserID),
			zap.Float64("score", verdict.Score),
			zap.String("reason", verdict.Reason),
		)
		return token.Token{}, fmt.Errorf("%w: %s", ErrDenied, verdict.Reason)
	}

	// Silent path: the only way a token appears without an explicit
	// confirmation. Requires both an allow verdict and a delegation the
	// user granted earlier.
	if verdict.Verdict == confidence.VerdictAllow {
		if cons, ok := g.graph.EffectiveConstraints(actor, req.UserID, verdict.Scope); ok {
			if req.Amount.IsZero() || cons.PermitsAmount(req.Amount) {
				tok, err := g.tokens.Issue(actor, req.ToolID, "", req.TurnID)
				if err != nil {
					g.audit(req, string(verdict.Verdict), "", verdict.Score, "denied", fmt.Sprintf("token issue failed: %v", err))
					return token.Token{}, fmt.Errorf("issue token: %w", err)
				}
				g.audit(req, string(verdict.Verdict), tok.ID, verdict.Score, "auto_authorized", "auto-authorized via delegation")
				g.logger.Info("auto-authorized via delegation",
					zap.String("tool", req.ToolID),
					zap.String("user", req.UserID),
					zap.String("actor", actor),
					zap.String("token", tok.ID),
				)
				return tok, nil
			}
			g.logger.Info("delegation found but amount exceeds cap",
				zap.String("tool", req.ToolID),
				zap.String("amount", req.Amount.String()),
			)
		}
	}

	// Confirmation path: require_human verdicts, allow verdicts with no
	// covering delegation, and over-cap amounts all land here.
	if req.Confirmation == nil {
		g.audit(req, string(verdict.Verdict), "", verdict.Score, "confirmation_required", verdict.Reason)
		return token.Token{}, fmt.Errorf("%w: %s", ErrConfirmationRequired, verdict.Reason)
	}
	if req.Confirmation.ID == "" || req.Confirmation.ConfirmedBy != req.UserID {
		g.audit(req, string(verdict.Verdict), "", verdict.Score, "denied", "confirmation rejected")
		return token.Token{}, ErrBadConfirmation
	}

	tok, err := g.tokens.Issue(actor, req.ToolID, req.Confirmation.ID, req.TurnID)
	if err != nil {
		g.audit(req, string(verdict.Verdict), "", verdict.Score, "denied", fmt.Sprintf("token issue failed: %v", err))
		return token.Token{}, err
	}
	g.audit(req, string(verdict.Verdict), tok.ID, verdict.Score, "token_issued", "confirmed by user")
	g.logger.Info("token issued on confirmation",
		zap.String("tool", req.ToolID),
		zap.String("user", req.UserID),
		zap.String("token", tok.ID),
	)
	return tok, nil
}

// #endregion request

// #region verify

// Verify atomically consumes the token for intentType. Side-effecting
// tool implementations must call this immediately before acting and must
// not act on false.
func (g *Gatekeeper) Verify(tokenID, intentType string) bool {
	ok := g.tokens.Consume(tokenID, intentType)
	g.auditToken(tokenID, intentType, ok)
	return ok
}

// VerifySigned consumes via the JWT wire form of the token. The outcome
// lands in the audit log the same as Verify: an unparseable or mismatched
// wire form is a refusal, a parseable one goes through the audited consume.
func (g *Gatekeeper) VerifySigned(signed, intentType string) bool {
	claims, err := g.tokens.ParseSigned(signed)
	if err != nil {
		g.auditToken("", intentType, false)
		return false
	}
	if claims.Intent != intentType {
		g.auditToken(claims.ID, intentType, false)
		return false
	}
	return g.Verify(claims.ID, intentType)
}

func (g *Gatekeeper) auditToken(tokenID, intentType string, consumed bool) {
	decision := "token_consumed"
	if !consumed {
		decision = "token_refused"
	}
	if err := audit.Log(g.db, audit.Entry{
		PrincipalID: g.tokenPrincipal(tokenID),
		ToolID:      intentType,
		Decision:    decision,
		TokenID:     tokenID,
	}); err != nil {
		g.logger.Error("audit write failed", zap.Error(err))
	}
}

// Cancel revokes an issued token before use (user withdrew the approval).
func (g *Gatekeeper) Cancel(tokenID string) error {
	if err := g.tokens.Revoke(tokenID); err != nil {
		return err
	}
	if err := audit.Log(g.db, audit.Entry{
		PrincipalID: g.tokenPrincipal(tokenID),
		ToolID:      "",
		Decision:    "token_revoked",
		TokenID:     tokenID,
	}); err != nil {
		g.logger.Error("audit write failed", zap.Error(err))
	}
	return nil
}

func (g *Gatekeeper) tokenPrincipal(tokenID string) string {
	tok, err := g.tokens.Get(tokenID)
	if err != nil {
		return "unknown"
	}
	return tok.PrincipalID
}

// #endregion verify

// #region audit-helper

func (g *Gatekeeper) audit(req Request, verdict, tokenID string, score float64, decision, reason string) {
	if err := audit.Log(g.db, audit.Entry{
		PrincipalID: req.UserID,
		ActorID:     req.ActorID,
		ToolID:      req.ToolID,
		Verdict:     verdict,
		Score:       score,
		Decision:    decision,
		Reason:      reason,
		TokenID:     tokenID,
		TurnID:      req.TurnID,
	}); err != nil {
		g.logger.Error("audit write failed", zap.Error(err))
	}
}

// #endregion audit-helper
