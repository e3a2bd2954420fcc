package transition

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/gate"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/state"
)

// #region types
// Resolution is the user's choice for an existing conversation when
// switching modes.
type Resolution string

const (
	Preserve Resolution = "preserve"
	Discard  Resolution = "discard"
)

// ParseResolution accepts "preserve" or "discard".
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(s) {
	case Preserve, Discard:
		return Resolution(s), nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownResolution, s)
}

// Outcome classifies a transition request.
type Outcome string

const (
	OutcomeBlocked     Outcome = "blocked"
	OutcomeNeedsChoice Outcome = "needs_choice"
	OutcomeApplied     Outcome = "applied"
)

// Result describes what a request or resolution did.
type Result struct {
	Outcome    Outcome
	From       domain.Mode
	To         domain.Mode
	Reason     string
	Resolution Resolution      // set when a choice was applied
	Notice     *domain.Message // transition system message, Preserve only
	Attachment *domain.Message // regenerated prompt, Preserve only
	Gate       gate.GateDecision
}

// ErrNoPendingTransition is returned by Resolve without a prior request.
var ErrNoPendingTransition = errors.New("no mode change is waiting for a choice")

// ErrUnknownResolution is returned for a choice other than Preserve or Discard.
var ErrUnknownResolution = errors.New("unknown resolution")

// NoticeFunc returns the system message appended after a preserving switch.
type NoticeFunc func(domain.Mode) string

// #endregion types

// #region controller
// Controller applies gated mode transitions to a conversation.
type Controller struct {
	gate    *gate.Gate
	conv    *state.Conversation
	notice  NoticeFunc
	pending *domain.Mode
}

// NewController wires a gate to the conversation it governs.
func NewController(g *gate.Gate, conv *state.Conversation, notice NoticeFunc) *Controller {
	if notice == nil {
		notice = func(m domain.Mode) string { return fmt.Sprintf("Switched to %s mode.", m.Title()) }
	}
	return &Controller{gate: g, conv: conv, notice: notice}
}

// Pending returns the target waiting for a Preserve/Discard choice.
func (c *Controller) Pending() (domain.Mode, bool) {
	if c.pending == nil {
		return "", false
	}
	return *c.pending, true
}

// Request asks to move to target. Blocked requests are expected feedback,
// not errors. Without prior user context the switch applies immediately.
func (c *Controller) Request(target domain.Mode) Result {
	from := c.conv.Mode()

	if p, ok := c.Pending(); ok {
		if p == target {
			return Result{
				Outcome: OutcomeNeedsChoice,
				From:    from,
				To:      target,
				Reason:  "choose whether to keep the conversation",
			}
		}
		return Result{
			Outcome: OutcomeBlocked,
			From:    from,
			To:      target,
			Reason:  fmt.Sprintf("finish switching to %s mode first", p.Title()),
		}
	}

	decision := c.gate.Evaluate(from, target, c.conv.InteractionCount())
	if !decision.Allowed() {
		return Result{
			Outcome: OutcomeBlocked,
			From:    from,
			To:      target,
			Reason:  decision.Reason,
			Gate:    decision,
		}
	}

	if !c.conv.HasContext() {
		c.conv.SwitchMode(target, false)
		return Result{
			Outcome: OutcomeApplied,
			From:    from,
			To:      target,
			Reason:  "no conversation to carry over",
			Gate:    decision,
		}
	}

	t := target
	c.pending = &t
	return Result{
		Outcome: OutcomeNeedsChoice,
		From:    from,
		To:      target,
		Reason:  "choose whether to keep the conversation",
		Gate:    decision,
	}
}

// Resolve applies the user's choice to the pending request.
//
// Preserve keeps the log and counters, appends a transition notice and
// regenerates the prompt for the target mode's tier from every user message.
// Discard starts the target mode from a fresh seed.
func (c *Controller) Resolve(ctx context.Context, res Resolution) (Result, error) {
	target, ok := c.Pending()
	if !ok {
		return Result{}, ErrNoPendingTransition
	}
	from := c.conv.Mode()

	switch res {
	case Preserve:
		topic := c.conv.UserTopic()
		c.conv.SwitchMode(target, true)
		notice := c.conv.AppendSystemMessage(c.notice(target))
		att, err := c.conv.GenerateAttachment(ctx, target.Tier(), topic, false)
		c.pending = nil
		if err != nil {
			return Result{
				Outcome:    OutcomeApplied,
				From:       from,
				To:         target,
				Resolution: Preserve,
				Notice:     &notice,
				Reason:     "mode switched but the prompt could not be regenerated",
			}, fmt.Errorf("preserve transition: %w", err)
		}
		return Result{
			Outcome:    OutcomeApplied,
			From:       from,
			To:         target,
			Resolution: Preserve,
			Notice:     &notice,
			Attachment: &att,
			Reason:     "conversation carried over",
		}, nil

	case Discard:
		c.conv.SwitchMode(target, false)
		c.pending = nil
		return Result{
			Outcome:    OutcomeApplied,
			From:       from,
			To:         target,
			Resolution: Discard,
			Reason:     "started fresh",
		}, nil
	}

	return Result{}, fmt.Errorf("resolve transition: %w %q", ErrUnknownResolution, res)
}

// Cancel drops a pending request. It reports whether one existed.
func (c *Controller) Cancel() bool {
	had := c.pending != nil
	c.pending = nil
	return had
}

// #endregion controller
