package agency

import (
	"fmt"
	"strings"
)

// #region patterns

// assertionPattern pairs a completed-action phrasing with the intent
// keywords it claims. An empty keyword list means any consumed token
// backs the claim.
type assertionPattern struct {
	phrase   string
	keywords []string
}

var assertionPatterns = []assertionPattern{
	{"i have sent", []string{"send", "message", "email"}},
	{"i've sent", []string{"send", "message", "email"}},
	{"i just sent", []string{"send", "message", "email"}},
	{"i sent", []string{"send", "message", "email"}},
	{"i have scheduled", []string{"schedule", "calendar"}},
	{"i've scheduled", []string{"schedule", "calendar"}},
	{"i scheduled", []string{"schedule", "calendar"}},
	{"i have ordered", []string{"order", "purchase"}},
	{"i've ordered", []string{"order", "purchase"}},
	{"i ordered", []string{"order", "purchase"}},
	{"i have purchased", []string{"order", "purchase"}},
	{"i've purchased", []string{"order", "purchase"}},
	{"i have placed the order", []string{"order", "purchase"}},
	{"i've placed the order", []string{"order", "purchase"}},
	{"i have paid", []string{"pay"}},
	{"i've paid", []string{"pay"}},
	{"i have booked", []string{"book", "reserve"}},
	{"i've booked", []string{"book", "reserve"}},
	{"i booked", []string{"book", "reserve"}},
	{"i have deleted", []string{"delete"}},
	{"i've deleted", []string{"delete"}},
	{"i deleted", []string{"delete"}},
	{"i have canceled", []string{"cancel"}},
	{"i've canceled", []string{"cancel"}},
	{"i have executed", nil},
	{"i've executed", nil},
	{"i went ahead and", nil},
	{"i've gone ahead and", nil},
	{"i have already done", nil},
	{"i've already done", nil},
}

// #endregion patterns

// #region violation

// Violation means generated text asserts a completed action that no
// consumed execution token backs up.
type Violation struct {
	Phrase string // the assertion phrasing that matched
	Text   string // the offending text
}

func (v *Violation) Error() string {
	return fmt.Sprintf("agency violation: text asserts completed action (%q) without a consumed execution token", v.Phrase)
}

// #endregion violation

// #region consumed-intents-source

// ConsumedIntentsSource reports which intents were consumed within a turn.
// The token store satisfies this.
type ConsumedIntentsSource interface {
	ConsumedIntents(turnID string) ([]string, error)
}

// #endregion consumed-intents-source

// #region validator

// Validator is a text-level guard against hallucinated autonomy: it
// rejects any system-generated message claiming an action already
// happened unless a consumed token for that action exists in the turn.
// It runs independently of the execution gate.
type Validator struct {
	tokens ConsumedIntentsSource
}

// NewValidator creates a validator over a consumed-intents source.
func NewValidator(tokens ConsumedIntentsSource) *Validator {
	return &Validator{tokens: tokens}
}

// #endregion validator

// #region validate

// Validate scans text for assertion-of-completed-action phrasing and
// checks each match against the intents consumed this turn. Returns nil
// when the text makes no unbacked claims.
func Validate(text string, consumedIntents []string) error {
	lower := strings.ToLower(text)

	for _, p := range assertionPatterns {
		if !strings.Contains(lower, p.phrase) {
			continue
		}
		if !claimBacked(p, consumedIntents) {
			return &Violation{Phrase: p.phrase, Text: text}
		}
	}
	return nil
}

// ValidateTurn pulls the turn's consumed intents from the token store and
// validates against them. A lookup failure counts as no consumed tokens
// (fail closed: the claim stays unbacked).
func (v *Validator) ValidateTurn(text, turnID string) error {
	intents, err := v.tokens.ConsumedIntents(turnID)
	if err != nil {
		intents = nil
	}
	return Validate(text, intents)
}

// claimBacked reports whether any consumed intent supports the matched
// assertion. Generic patterns accept any consumed token; specific ones
// require an intent containing one of their keywords.
func claimBacked(p assertionPattern, consumedIntents []string) bool {
	if len(consumedIntents) == 0 {
		return false
	}
	if len(p.keywords) == 0 {
		return true
	}
	for _, intent := range consumedIntents {
		lowerIntent := strings.ToLower(intent)
		for _, kw := range p.keywords {
			if strings.Contains(lowerIntent, kw) {
				return true
			}
		}
	}
	return false
}

// #endregion validate
