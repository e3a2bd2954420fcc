package controller

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/gate"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/policy"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/prompt"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/schedule"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/state"
)

// #region errors
var (
	// ErrBusy is returned while a simulated generation is in flight.
	ErrBusy = errors.New("a prompt is still being generated")
	// ErrNothingToCopy is returned by CopyAttachment before any prompt exists.
	ErrNothingToCopy = errors.New("no generated prompt to copy yet")
)

// #endregion errors

// #region config
// Config holds the widget's timing and limits.
type Config struct {
	InitialMode      domain.Mode
	GenerationDelay  time.Duration
	TypingInterval   time.Duration // <= 0 disables the typing effect
	TypingChunk      int
	SelectTimeout    time.Duration // <= 0 means no timeout
	MaxRefreshes     int
	MaxMessageLength int
}

// DefaultConfig returns the standard widget timings.
func DefaultConfig() Config {
	return Config{
		InitialMode:      domain.ModeQuick,
		GenerationDelay:  1500 * time.Millisecond,
		TypingInterval:   20 * time.Millisecond,
		TypingChunk:      2,
		SelectTimeout:    5 * time.Second,
		MaxRefreshes:     state.MaxRefreshes,
		MaxMessageLength: state.MaxMessageLength,
	}
}

// #endregion config

// #region deps
// Deps are the collaborators a Widget is built from. Catalog is required;
// everything else has a default.
type Deps struct {
	Policy    *policy.Policy
	Gate      *gate.Gate
	Catalog   *prompt.Catalog
	Selector  prompt.Selector
	Scheduler schedule.Scheduler
	Analytics domain.AnalyticsSink
	Clipboard domain.Clipboard
	Notifier  domain.Notifier
	Logger    zerolog.Logger
	Now       func() time.Time
	NewID     func() string
	Seed      uint64 // refresh randomness when Selector is nil
}

// #endregion deps

// #region results
// SendResult reports what the policy decided for a user message.
type SendResult struct {
	Message domain.Message
	Action  policy.Action
	// Reply is the system question appended for ask_question actions.
	Reply *domain.Message
	// Generating is true when an attachment is scheduled.
	Generating bool
}

// ViewMessage is a message as currently displayed.
type ViewMessage struct {
	domain.Message
	Visible string
	Typing  bool
}

// View is a read-only picture of the widget for renderers.
type View struct {
	Messages         []ViewMessage
	Mode             domain.Mode
	InteractionCount int
	RefreshCount     int
	MaxRefreshes     int
	CanRefresh       bool
	CurrentTier      domain.Tier
	NextTier         domain.Tier
	Remaining        int
	Unlocked         []domain.Mode
	PendingMode      domain.Mode // empty when no choice is waiting
	Generating       bool
	Closed           bool
}

// #endregion results

// #region nop-sinks
type nopAnalytics struct{}

func (nopAnalytics) Record(string, string, string) {}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, domain.Variant) {}

// #endregion nop-sinks

// analytics categories
const (
	catChat   = "chat"
	catPrompt = "prompt"
	catMode   = "mode"
)
