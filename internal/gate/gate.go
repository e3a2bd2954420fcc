package gate

import (
	"fmt"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
)

// #region gate
// Gate evaluates whether the conversation may move to another mode.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Required returns the interaction count needed to enter mode.
func (g *Gate) Required(mode domain.Mode) int {
	return g.config.MinInteractions[mode]
}

// Evaluate checks a request to move from current to target given how many
// user interactions the conversation holds. Blocking is an expected outcome,
// not an error.
func (g *Gate) Evaluate(current, target domain.Mode, interactions int) GateDecision {
	if !target.Valid() {
		return GateDecision{
			Action: "block",
			Block:  BlockUnknownMode,
			Reason: fmt.Sprintf("%q is not a mode", string(target)),
			Have:   interactions,
		}
	}

	if current == target {
		return GateDecision{
			Action: "block",
			Block:  BlockSameMode,
			Reason: fmt.Sprintf("already in %s mode", target.Title()),
			Have:   interactions,
		}
	}

	required := g.Required(target)
	if interactions < required {
		remaining := required - interactions
		return GateDecision{
			Action:    "block",
			Block:     BlockInsufficient,
			Reason:    fmt.Sprintf("%s mode unlocks after %d exchanges (%d more to go)", target.Title(), required, remaining),
			Required:  required,
			Have:      interactions,
			Remaining: remaining,
		}
	}

	return GateDecision{
		Action:   "allow",
		Reason:   fmt.Sprintf("%d/%d exchanges", interactions, required),
		Required: required,
		Have:     interactions,
	}
}

// Unlocked lists the modes reachable from current at the given count.
func (g *Gate) Unlocked(current domain.Mode, interactions int) []domain.Mode {
	var out []domain.Mode
	for _, m := range domain.Modes {
		if g.Evaluate(current, m, interactions).Allowed() {
			out = append(out, m)
		}
	}
	return out
}

// #endregion gate
