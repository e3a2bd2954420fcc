package state

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/policy"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/prompt"
)

// #region conversation-struct
// Conversation owns the message log, counters, tier and attachment of one
// widget instance. It is not safe for concurrent use; the controller
// serializes access.
type Conversation struct {
	policy   *policy.Policy
	selector prompt.Selector
	seed     SeedFunc
	now      func() time.Time
	newID    func() string

	maxRefreshes int
	maxLength    int

	messages         []domain.Message
	mode             domain.Mode
	interactionCount int
	refreshCount     int
	currentTier      domain.Tier
	attachment       *Attachment
	epoch            int
}

// #endregion conversation-struct

// #region constructor
// New creates a conversation in mode holding a single seed message.
func New(mode domain.Mode, pol *policy.Policy, sel prompt.Selector, seed SeedFunc, opts Options) *Conversation {
	c := &Conversation{
		policy:       pol,
		selector:     sel,
		seed:         seed,
		now:          opts.Now,
		newID:        opts.NewID,
		maxRefreshes: opts.MaxRefreshes,
		maxLength:    opts.MaxMessageLength,
		mode:         mode,
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.New().String() }
	}
	if c.maxRefreshes <= 0 {
		c.maxRefreshes = MaxRefreshes
	}
	if c.maxLength <= 0 {
		c.maxLength = MaxMessageLength
	}
	if c.seed == nil {
		c.seed = func(m domain.Mode) string { return fmt.Sprintf("%s mode. What are we building?", m.Title()) }
	}
	c.reseed()
	return c
}

// #endregion constructor

// #region submit
// SubmitUserMessage validates and appends a user message, increments the
// interaction count and returns the policy decision for the new count.
func (c *Conversation) SubmitUserMessage(text string) (policy.Action, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return policy.Action{}, &domain.ValidationError{Field: "message", Reason: "message is empty"}
	}
	if n := utf8.RuneCountInString(trimmed); n > c.maxLength {
		return policy.Action{}, &domain.ValidationError{
			Field:  "message",
			Reason: "message is too long",
			Length: n,
			Max:    c.maxLength,
		}
	}

	c.append(domain.SenderUser, trimmed, "")
	c.interactionCount++
	return c.policy.NextAction(c.mode, c.interactionCount, c.currentTier), nil
}

// #endregion submit

// #region system
// AppendSystemMessage appends a system message with its final text.
func (c *Conversation) AppendSystemMessage(text string) domain.Message {
	return c.append(domain.SenderSystem, text, "")
}

// #endregion system

// #region attachment
// GenerateAttachment selects a prompt for tier and appends it as the new
// current attachment. A non-refresh generation starts a fresh refresh budget;
// a refresh generation leaves the counter to the caller.
func (c *Conversation) GenerateAttachment(ctx context.Context, tier domain.Tier, topic string, isRefresh bool) (domain.Message, error) {
	text, err := c.SelectText(ctx, tier, topic, isRefresh)
	if err != nil {
		return domain.Message{}, err
	}
	return c.AppendAttachment(tier, topic, text, isRefresh), nil
}

// SelectText asks the selector for a prompt without touching the
// conversation. It may be called without holding the caller's lock.
func (c *Conversation) SelectText(ctx context.Context, tier domain.Tier, topic string, isRefresh bool) (string, error) {
	if !tier.Valid() {
		return "", fmt.Errorf("generate attachment: invalid tier %s", tier)
	}
	text, err := c.selector.Select(ctx, tier, topic, isRefresh)
	if err != nil {
		return "", fmt.Errorf("generate %s attachment: %w", tier, err)
	}
	return text, nil
}

// AppendAttachment records text, selected for tier, as the current
// attachment.
func (c *Conversation) AppendAttachment(tier domain.Tier, topic, text string, isRefresh bool) domain.Message {
	msg := c.append(domain.SenderAttachment, text, tier.String())
	if !isRefresh {
		c.refreshCount = 0
	}
	c.attachment = &Attachment{
		MessageID:    msg.ID,
		Text:         text,
		Tier:         tier,
		Topic:        topic,
		RefreshCount: c.refreshCount,
	}
	if tier > c.currentTier {
		c.currentTier = tier
	}
	return msg
}

// Refresh regenerates the current attachment with a random variant. The
// previous attachment message stays in the log.
func (c *Conversation) Refresh(ctx context.Context) (domain.Message, error) {
	if c.refreshCount >= c.maxRefreshes {
		return domain.Message{}, &domain.LimitExceededError{
			Limit: "refresh",
			Max:   c.maxRefreshes,
			Used:  c.refreshCount,
		}
	}
	if c.attachment == nil {
		return domain.Message{}, ErrNothingToRefresh
	}

	prev := *c.attachment
	msg, err := c.GenerateAttachment(ctx, prev.Tier, prev.Topic, true)
	if err != nil {
		return domain.Message{}, err
	}
	c.refreshCount++
	c.attachment.RefreshCount = c.refreshCount
	return msg, nil
}

// CanRefresh reports whether Refresh would be attempted.
func (c *Conversation) CanRefresh() bool {
	return c.attachment != nil && c.refreshCount < c.maxRefreshes
}

// #endregion attachment

// #region reset
// Reset returns to a single seed message in the current mode with all
// counters zeroed and no attachment.
func (c *Conversation) Reset() {
	c.interactionCount = 0
	c.refreshCount = 0
	c.currentTier = domain.TierNone
	c.attachment = nil
	c.epoch++
	c.reseed()
}

// SwitchMode changes mode. Without keepContext the conversation is reset to
// a fresh seed for the new mode; with it, messages and counters carry over.
func (c *Conversation) SwitchMode(mode domain.Mode, keepContext bool) {
	c.mode = mode
	if !keepContext {
		c.Reset()
	}
}

func (c *Conversation) reseed() {
	c.messages = nil
	c.append(domain.SenderSystem, c.seed(c.mode), "")
}

// #endregion reset

// #region accessors
// Mode returns the active mode.
func (c *Conversation) Mode() domain.Mode { return c.mode }

// InteractionCount returns how many user messages count toward progression.
func (c *Conversation) InteractionCount() int { return c.interactionCount }

// RefreshCount returns refreshes used on the current attachment.
func (c *Conversation) RefreshCount() int { return c.refreshCount }

// MaxRefreshes returns the refresh cap.
func (c *Conversation) MaxRefreshes() int { return c.maxRefreshes }

// CurrentTier returns the highest tier generated in this epoch.
func (c *Conversation) CurrentTier() domain.Tier { return c.currentTier }

// Epoch increments on every reset; scheduled work compares it to detect
// that the conversation it was scheduled for is gone.
func (c *Conversation) Epoch() int { return c.epoch }

// Policy returns the tier policy in use.
func (c *Conversation) Policy() *policy.Policy { return c.policy }

// Attachment returns a copy of the current attachment.
func (c *Conversation) Attachment() (Attachment, bool) {
	if c.attachment == nil {
		return Attachment{}, false
	}
	return *c.attachment, true
}

// HasContext reports whether the user has said anything in this epoch.
func (c *Conversation) HasContext() bool {
	for _, m := range c.messages {
		if m.Sender == domain.SenderUser {
			return true
		}
	}
	return false
}

// UserTopic concatenates every user message in order.
func (c *Conversation) UserTopic() string {
	var parts []string
	for _, m := range c.messages {
		if m.Sender == domain.SenderUser {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Snapshot returns a deep copy of the state.
func (c *Conversation) Snapshot() Snapshot {
	s := Snapshot{
		Messages:         append([]domain.Message(nil), c.messages...),
		Mode:             c.mode,
		InteractionCount: c.interactionCount,
		RefreshCount:     c.refreshCount,
		MaxRefreshes:     c.maxRefreshes,
		CurrentTier:      c.currentTier,
		Epoch:            c.epoch,
	}
	if c.attachment != nil {
		a := *c.attachment
		s.Attachment = &a
	}
	return s
}

// #endregion accessors

// #region helpers
func (c *Conversation) append(sender domain.Sender, text, tierLabel string) domain.Message {
	msg := domain.Message{
		ID:        c.newID(),
		Text:      text,
		Sender:    sender,
		Timestamp: c.now(),
		Mode:      c.mode,
		TierLabel: tierLabel,
	}
	c.messages = append(c.messages, msg)
	return msg
}

// #endregion helpers
