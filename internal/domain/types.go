package domain

import (
	"fmt"
	"strings"
	"time"
)

// #region mode
// Mode is the conversation mode the widget is running in.
type Mode string

const (
	ModeQuick   Mode = "quick"
	ModeDeep    Mode = "deep"
	ModeCracked Mode = "cracked"
)

// Modes lists every mode in ascending order.
var Modes = []Mode{ModeQuick, ModeDeep, ModeCracked}

// ParseMode accepts a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeQuick:
		return ModeQuick, nil
	case ModeDeep:
		return ModeDeep, nil
	case ModeCracked:
		return ModeCracked, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Valid reports whether m is one of the three known modes.
func (m Mode) Valid() bool {
	return m == ModeQuick || m == ModeDeep || m == ModeCracked
}

// Tier returns the prompt tier a mode produces on transition.
func (m Mode) Tier() Tier {
	switch m {
	case ModeQuick:
		return Tier1
	case ModeDeep:
		return Tier2
	case ModeCracked:
		return Tier3
	}
	return TierNone
}

// Title is the display name used in notices.
func (m Mode) Title() string {
	switch m {
	case ModeQuick:
		return "Quick"
	case ModeDeep:
		return "Deep"
	case ModeCracked:
		return "Cracked"
	}
	return string(m)
}

// #endregion mode

// #region tier
// Tier is the prompt-quality level reached in a conversation.
// Tiers are ordered; TierNone is the zero value.
type Tier int

const (
	TierNone Tier = iota
	Tier1
	Tier2
	Tier3
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case Tier1:
		return "tier1"
	case Tier2:
		return "tier2"
	case Tier3:
		return "tier3"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier is the inverse of Tier.String.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return TierNone, nil
	case "tier1":
		return Tier1, nil
	case "tier2":
		return Tier2, nil
	case "tier3":
		return Tier3, nil
	}
	return TierNone, fmt.Errorf("unknown tier %q", s)
}

// Valid reports whether t names a generatable tier (tier1..tier3).
func (t Tier) Valid() bool {
	return t >= Tier1 && t <= Tier3
}

// Next returns the following tier, or TierNone past tier3.
func (t Tier) Next() Tier {
	if t >= Tier3 || t < TierNone {
		return TierNone
	}
	return t + 1
}

// #endregion tier

// #region message
// Sender identifies who produced a message.
type Sender string

const (
	SenderUser       Sender = "user"
	SenderSystem     Sender = "system"
	SenderAttachment Sender = "attachment"
)

// Message is a single entry in the conversation log. Insertion order is
// display order.
type Message struct {
	ID        string
	Text      string
	Sender    Sender
	Timestamp time.Time
	Mode      Mode
	TierLabel string // set on attachment messages only
}

// #endregion message

// #region variant
// Variant styles a notification.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantWarning     Variant = "warning"
	VariantDestructive Variant = "destructive"
)

// #endregion variant
