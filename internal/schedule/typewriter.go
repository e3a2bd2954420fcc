package schedule

import (
	"sync"
	"time"
)

// #region typewriter
// Typewriter reveals one system message at a time, chunk runes per
// interval. Starting a new message finalizes the one in flight, so two
// animations never overlap.
type Typewriter struct {
	mu       sync.Mutex
	sched    Scheduler
	interval time.Duration
	chunk    int
	active   *typingJob
}

type typingJob struct {
	id     string
	runes  []rune
	shown  int
	handle Handle
}

// NewTypewriter creates a typewriter. A non-positive interval disables the
// effect: messages are visible in full immediately.
func NewTypewriter(sched Scheduler, interval time.Duration, chunk int) *Typewriter {
	if chunk <= 0 {
		chunk = 1
	}
	return &Typewriter{sched: sched, interval: interval, chunk: chunk}
}

// Start animates text for message id.
func (t *Typewriter) Start(id, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.finalizeLocked()
	runes := []rune(text)
	if t.interval <= 0 || len(runes) <= t.chunk {
		return
	}
	job := &typingJob{id: id, runes: runes}
	t.active = job
	t.scheduleLocked(job)
}

// Visible returns how much of message id is shown. Messages that are not
// animating are shown in full.
func (t *Typewriter) Visible(id, full string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil || t.active.id != id {
		return full
	}
	return string(t.active.runes[:t.active.shown])
}

// Typing returns the id of the message being animated.
func (t *Typewriter) Typing() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return "", false
	}
	return t.active.id, true
}

// FinalizeAll completes the in-flight animation immediately.
func (t *Typewriter) FinalizeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finalizeLocked()
}

func (t *Typewriter) finalizeLocked() {
	if t.active == nil {
		return
	}
	if t.active.handle != nil {
		t.active.handle.Cancel()
	}
	t.active = nil
}

func (t *Typewriter) scheduleLocked(job *typingJob) {
	job.handle = t.sched.After(t.interval, func() { t.tick(job) })
}

func (t *Typewriter) tick(job *typingJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != job {
		return
	}
	job.shown += t.chunk
	if job.shown >= len(job.runes) {
		t.active = nil
		return
	}
	t.scheduleLocked(job)
}

// #endregion typewriter
