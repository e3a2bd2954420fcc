package state

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
)

// #region limits
const (
	// MaxRefreshes caps how many times the current attachment can be refreshed.
	MaxRefreshes = 3
	// MaxMessageLength is the user input limit in characters.
	MaxMessageLength = 200
)

// ErrNothingToRefresh is returned by Refresh before any attachment exists.
var ErrNothingToRefresh = errors.New("no generated prompt to refresh yet")

// #endregion limits

// #region attachment
// Attachment is the current generated prompt. Historical attachment
// messages stay in the log; only one attachment is current.
type Attachment struct {
	MessageID    string
	Text         string
	Tier         domain.Tier
	Topic        string
	RefreshCount int
}

// #endregion attachment

// #region options
// SeedFunc returns the greeting for a fresh conversation in a mode.
type SeedFunc func(domain.Mode) string

// Options tunes a Conversation. Zero values fall back to defaults.
type Options struct {
	MaxRefreshes     int
	MaxMessageLength int
	Now              func() time.Time
	NewID            func() string
}

// #endregion options

// #region snapshot
// Snapshot is a deep copy of conversation state for readers.
type Snapshot struct {
	Messages         []domain.Message
	Mode             domain.Mode
	InteractionCount int
	RefreshCount     int
	MaxRefreshes     int
	CurrentTier      domain.Tier
	Attachment       *Attachment
	Epoch            int
}

// LastMessage returns the most recent message, if any.
func (s Snapshot) LastMessage() (domain.Message, bool) {
	if len(s.Messages) == 0 {
		return domain.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// CountBySender tallies messages per sender.
func (s Snapshot) CountBySender() map[domain.Sender]int {
	out := make(map[domain.Sender]int, 3)
	for _, m := range s.Messages {
		out[m.Sender]++
	}
	return out
}

// #endregion snapshot
