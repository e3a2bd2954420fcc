package sinks

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
)

// #region log-notifier

// LogNotifier writes notices to a zerolog logger, at warn level for
// warnings and error level for destructive notices.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier on logger.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(title, description string, variant domain.Variant) {
	var evt *zerolog.Event
	switch variant {
	case domain.VariantWarning:
		evt = n.logger.Warn()
	case domain.VariantDestructive:
		evt = n.logger.Error()
	default:
		evt = n.logger.Info()
	}
	evt.Str("title", title).Str("variant", string(variant)).Msg(description)
}

// #endregion log-notifier

// #region recording-notifier

// Notice is one recorded notification.
type Notice struct {
	Title       string
	Description string
	Variant     domain.Variant
}

// RecordingNotifier keeps every notice in order. The terminal renderer
// drains it after each command.
type RecordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

// NewRecordingNotifier returns an empty recorder.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (r *RecordingNotifier) Notify(title, description string, variant domain.Variant) {
	if variant == "" {
		variant = domain.VariantDefault
	}
	r.mu.Lock()
	r.notices = append(r.notices, Notice{Title: title, Description: description, Variant: variant})
	r.mu.Unlock()
}

// Notices returns a copy of everything recorded.
func (r *RecordingNotifier) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Drain returns and clears the recorded notices.
func (r *RecordingNotifier) Drain() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notices
	r.notices = nil
	return out
}

// Last returns the most recent notice.
func (r *RecordingNotifier) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}

// #endregion recording-notifier

// #region multi-notifier

// MultiNotifier fans a notice out to several notifiers.
type MultiNotifier []domain.Notifier

func (m MultiNotifier) Notify(title, description string, variant domain.Variant) {
	for _, n := range m {
		n.Notify(title, description, variant)
	}
}

// #endregion multi-notifier
