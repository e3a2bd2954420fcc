package schedule

import (
	"sort"
	"sync"
	"time"
)

// #region interfaces
// Handle cancels one scheduled continuation.
type Handle interface {
	// Cancel reports whether the continuation was still pending.
	Cancel() bool
}

// Scheduler runs continuations after a delay. Every continuation is
// cancelable, individually or all at once.
type Scheduler interface {
	After(d time.Duration, fn func()) Handle
	CancelAll() int
	Pending() int
}

type noopHandle struct{}

func (noopHandle) Cancel() bool { return false }

// #endregion interfaces

// #region timer-scheduler
// TimerScheduler runs continuations on the wall clock via time.AfterFunc.
type TimerScheduler struct {
	mu       sync.Mutex
	next     uint64
	timers   map[uint64]*time.Timer
	closed   bool
	inflight sync.WaitGroup
}

// NewTimerScheduler creates a wall-clock scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[uint64]*time.Timer)}
}

// After schedules fn. After Close it returns a handle that does nothing.
func (s *TimerScheduler) After(d time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return noopHandle{}
	}

	id := s.next
	s.next++
	s.timers[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		if _, ok := s.timers[id]; !ok || s.closed {
			s.mu.Unlock()
			return
		}
		delete(s.timers, id)
		s.inflight.Add(1)
		s.mu.Unlock()

		defer s.inflight.Done()
		fn()
	})
	return &timerHandle{s: s, id: id}
}

// CancelAll stops every pending continuation and returns how many it stopped.
func (s *TimerScheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, t := range s.timers {
		if t.Stop() {
			n++
		}
		delete(s.timers, id)
	}
	return n
}

// Pending returns how many continuations have not fired yet.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels everything and waits for continuations already running.
// It must not be called from inside a continuation.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.inflight.Wait()
}

type timerHandle struct {
	s  *TimerScheduler
	id uint64
}

func (h *timerHandle) Cancel() bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	t, ok := h.s.timers[h.id]
	if !ok {
		return false
	}
	delete(h.s.timers, h.id)
	return t.Stop()
}

// #endregion timer-scheduler

// #region manual-scheduler
// ManualScheduler runs continuations on a virtual clock that only moves when
// Advance or RunAll is called. Continuations run on the caller's goroutine.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   uint64
	tasks []*manualTask
}

type manualTask struct {
	s   *ManualScheduler
	seq uint64
	due time.Duration
	fn  func()
}

// maxRunAll bounds RunAll against continuations that reschedule forever.
const maxRunAll = 100000

// NewManualScheduler creates a virtual-clock scheduler at time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// After schedules fn at now+d on the virtual clock.
func (s *ManualScheduler) After(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{s: s, seq: s.seq, due: s.now + d, fn: fn}
	s.seq++
	s.tasks = append(s.tasks, t)
	sort.SliceStable(s.tasks, func(i, j int) bool {
		if s.tasks[i].due != s.tasks[j].due {
			return s.tasks[i].due < s.tasks[j].due
		}
		return s.tasks[i].seq < s.tasks[j].seq
	})
	return t
}

// Advance moves the clock forward by d, running every continuation that
// falls due in order. It returns how many ran.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	ran := 0
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 || s.tasks[0].due > target {
			s.now = target
			s.mu.Unlock()
			return ran
		}
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.now = t.due
		s.mu.Unlock()

		t.fn()
		ran++
	}
}

// RunAll runs continuations until none are pending, advancing the clock to
// each one's due time.
func (s *ManualScheduler) RunAll() int {
	ran := 0
	for ran < maxRunAll {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return ran
		}
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.now = t.due
		s.mu.Unlock()

		t.fn()
		ran++
	}
	return ran
}

// CancelAll drops every pending continuation.
func (s *ManualScheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tasks)
	s.tasks = nil
	return n
}

// Pending returns how many continuations are queued.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Now returns the virtual time elapsed since creation.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (t *manualTask) Cancel() bool {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, other := range s.tasks {
		if other == t {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// #endregion manual-scheduler
