package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
)

// #region writer
// EventWriter persists events. *Store implements it.
type EventWriter interface {
	Append(ctx context.Context, e Event) error
}

// #endregion writer

// #region recorder
// DefaultBuffer is the recorder queue size used when none is given.
const DefaultBuffer = 256

// Recorder is a domain.AnalyticsSink that hands events to a single writer
// goroutine. Record never blocks: when the queue is full or the recorder is
// closed the event is dropped and counted.
type Recorder struct {
	writer    EventWriter
	sessionID string
	logger    zerolog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	wg     conc.WaitGroup

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewRecorder starts a recorder for one session. An empty sessionID gets a
// fresh UUID.
func NewRecorder(w EventWriter, sessionID string, buffer int, logger zerolog.Logger) *Recorder {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	r := &Recorder{
		writer:    w,
		sessionID: sessionID,
		logger:    logger.With().Str("component", "analytics").Str("session_id", sessionID).Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		queue:     make(chan Event, buffer),
	}
	r.wg.Go(r.run)
	return r
}

// SessionID returns the session every event is tagged with.
func (r *Recorder) SessionID() string { return r.sessionID }

// Record queues an event.
func (r *Recorder) Record(category, action, label string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	e := Event{
		ID:        uuid.New().String(),
		SessionID: r.sessionID,
		Category:  category,
		Action:    action,
		Label:     label,
		CreatedAt: r.now(),
	}
	select {
	case r.queue <- e:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) run() {
	for e := range r.queue {
		if err := r.writer.Append(context.Background(), e); err != nil {
			r.failed.Add(1)
			r.logger.Warn().Err(err).Str("category", e.Category).Str("action", e.Action).Msg("record event")
			continue
		}
		r.written.Add(1)
	}
}

// Close stops accepting events and waits until the queue is written.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Debug().
		Int64("written", r.written.Load()).
		Int64("dropped", r.dropped.Load()).
		Int64("failed", r.failed.Load()).
		Msg("recorder closed")
	return nil
}

// Stats returns written, dropped and failed counts.
func (r *Recorder) Stats() (written, dropped, failed int64) {
	return r.written.Load(), r.dropped.Load(), r.failed.Load()
}

// #endregion recorder

// #region log-sink
// LogSink writes every event to a zerolog logger at debug level.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink on logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "analytics").Logger()}
}

func (s *LogSink) Record(category, action, label string) {
	s.logger.Debug().
		Str("category", category).
		Str("action", action).
		Str("label", label).
		Msg("event")
}

// #endregion log-sink

// #region multi
// Multi fans an event out to several sinks.
type Multi []domain.AnalyticsSink

func (m Multi) Record(category, action, label string) {
	for _, s := range m {
		s.Record(category, action, label)
	}
}

// #endregion multi
