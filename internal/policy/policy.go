package policy

import (
	"fmt"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
)

// #region policy
// Policy maps an interaction count to the next widget action.
type Policy struct {
	config Config
}

// New creates a policy after validating the configuration.
func New(config Config) (*Policy, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("policy config: %w", err)
	}
	return &Policy{config: config}, nil
}

// Thresholds returns T1, T2, T3.
func (p *Policy) Thresholds() [3]int {
	return p.config.Thresholds
}

// NextAction decides what follows the interactionCount-th user message in
// the given mode. It never panics and never indexes past a question bank.
func (p *Policy) NextAction(mode domain.Mode, interactionCount int, current domain.Tier) Action {
	th := p.config.Thresholds

	if interactionCount <= 0 {
		return Action{Kind: ActionWait, Reason: "no interactions yet"}
	}

	// Exactly on a threshold: generate unless that tier was already reached.
	for i, t := range th {
		if interactionCount != t {
			continue
		}
		tier := domain.Tier(i + 1)
		if current >= tier {
			return Action{
				Kind:   ActionWait,
				Reason: fmt.Sprintf("%s already generated", tier),
			}
		}
		return Action{
			Kind:   ActionGenerate,
			Tier:   tier,
			Reason: fmt.Sprintf("reached %d interactions", t),
		}
	}

	if interactionCount > th[2] {
		return Action{Kind: ActionWait, Reason: "all tiers unlocked; refresh to iterate"}
	}

	band := bandOf(th, interactionCount)
	prev := 0
	if band > 0 {
		prev = th[band-1]
	}
	idx := interactionCount - prev - 1

	bank := p.config.Questions[mode]
	questions := bank[band]
	if idx < 0 || idx >= len(questions) {
		return Action{
			Kind:          ActionWait,
			QuestionIndex: idx,
			Reason:        fmt.Sprintf("no canned question %d in band %d for %s", idx, band, mode),
		}
	}
	return Action{
		Kind:          ActionAskQuestion,
		Question:      questions[idx],
		QuestionIndex: idx,
		Reason:        fmt.Sprintf("band %d question %d", band, idx),
	}
}

// Progress returns the next tier the count is heading to and how many more
// interactions it takes. Past T3 it returns TierNone and 0.
func (p *Policy) Progress(interactionCount int) (domain.Tier, int) {
	for i, t := range p.config.Thresholds {
		if interactionCount < t {
			return domain.Tier(i + 1), t - max(interactionCount, 0)
		}
	}
	return domain.TierNone, 0
}

// TierFor returns the highest tier whose threshold the count has reached.
func (p *Policy) TierFor(interactionCount int) domain.Tier {
	tier := domain.TierNone
	for i, t := range p.config.Thresholds {
		if interactionCount >= t {
			tier = domain.Tier(i + 1)
		}
	}
	return tier
}

// #endregion policy

// #region helpers
// bandOf returns how many thresholds lie strictly below count.
func bandOf(th [3]int, count int) int {
	band := 0
	for _, t := range th {
		if count > t {
			band++
		}
	}
	return band
}

// #endregion helpers
