package policy

import (
	"fmt"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
)

// #region action-kind
// ActionKind enumerates what the widget should do after a user message.
type ActionKind string

const (
	ActionAskQuestion ActionKind = "ask_question"
	ActionGenerate    ActionKind = "generate"
	ActionWait        ActionKind = "wait"
)

// #endregion action-kind

// #region action
// Action is the policy decision for one interaction count.
type Action struct {
	Kind          ActionKind
	Question      string      // set for ActionAskQuestion
	QuestionIndex int         // index into the band's question list
	Tier          domain.Tier // set for ActionGenerate
	Reason        string
}

// #endregion action

// #region config
// Config holds the tier thresholds and the canned question banks.
// Questions[mode][band] is asked between thresholds: band 0 before T1,
// band 1 between T1 and T2, band 2 between T2 and T3.
type Config struct {
	Thresholds [3]int
	Questions  map[domain.Mode][3][]string
}

// DefaultConfig returns the production thresholds (3/6/9) and question banks.
func DefaultConfig() Config {
	return Config{
		Thresholds: [3]int{3, 6, 9},
		Questions: map[domain.Mode][3][]string{
			domain.ModeQuick: {
				{
					"Nice. Who is this for, and what should they walk away with?",
					"Got it. Any format you want back: bullets, a table, a short essay?",
				},
				{
					"What would make the answer obviously wrong to you?",
					"Should it sound like a friend, a consultant or a textbook?",
				},
				{
					"Is there an example of output you already like?",
					"Any hard limits: length, tools, things to avoid?",
				},
			},
			domain.ModeDeep: {
				{
					"Let's dig in. What have you already tried, and where did it fall short?",
					"What does success look like in one sentence?",
				},
				{
					"Which constraints are fixed and which are negotiable?",
					"Who will read the result and what do they already know?",
				},
				{
					"What's the riskiest assumption in this plan?",
					"If you could only keep one requirement, which one?",
				},
			},
			domain.ModeCracked: {
				{
					"Unfiltered version: what do you actually want the model to do?",
					"What persona should it commit to, no hedging?",
				},
				{
					"What would an expert do here that a beginner would miss?",
					"Where should it push back on you?",
				},
				{
					"What's the output you'd screenshot and send to a friend?",
					"Anything it must never say?",
				},
			},
		},
	}
}

// Validate checks that thresholds are positive and strictly ascending.
func (c Config) Validate() error {
	prev := 0
	for i, t := range c.Thresholds {
		if t <= prev {
			return fmt.Errorf("threshold T%d=%d must be greater than %d", i+1, t, prev)
		}
		prev = t
	}
	return nil
}

// #endregion config
