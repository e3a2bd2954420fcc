package gate

import "github.com/danielpatrickdp/promptforge/go-controller/internal/domain"

// #region block-type
// BlockType enumerates why a mode transition was refused.
type BlockType string

const (
	BlockUnknownMode  BlockType = "unknown_mode"
	BlockSameMode     BlockType = "same_mode"
	BlockInsufficient BlockType = "insufficient_interactions"
)

// #endregion block-type

// #region gate-config
// GateConfig holds the minimum interaction count required to enter each mode.
type GateConfig struct {
	MinInteractions map[domain.Mode]int
}

// DefaultGateConfig unlocks deep after 3 exchanges and cracked after 6.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinInteractions: map[domain.Mode]int{
			domain.ModeQuick:   0,
			domain.ModeDeep:    3,
			domain.ModeCracked: 6,
		},
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of a transition gate evaluation.
type GateDecision struct {
	Action    string // "allow" | "block"
	Reason    string
	Block     BlockType // empty when allowed
	Required  int
	Have      int
	Remaining int // interactions still needed, 0 when allowed
}

// Allowed reports whether the transition may proceed.
func (d GateDecision) Allowed() bool {
	return d.Action == "allow"
}

// #endregion gate-decision
