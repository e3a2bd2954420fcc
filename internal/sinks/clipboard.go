package sinks

import (
	"context"
	"errors"
	"sync"

	"github.com/atotto/clipboard"
)

// #region system-clipboard

// writeAll is swapped in tests; the real clipboard needs a display or
// pbcopy/xclip on PATH.
var writeAll = clipboard.WriteAll

// SystemClipboard writes to the operating system clipboard.
type SystemClipboard struct{}

// NewSystemClipboard returns a clipboard backed by the OS.
func NewSystemClipboard() *SystemClipboard {
	return &SystemClipboard{}
}

// Available reports whether the platform has a clipboard utility.
func (SystemClipboard) Available() bool {
	return !clipboard.Unsupported
}

// WriteText copies text. The OS call cannot be interrupted; ctx is only
// checked before it starts.
func (SystemClipboard) WriteText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if clipboard.Unsupported {
		return errors.New("clipboard is not supported on this platform")
	}
	return writeAll(text)
}

// #endregion system-clipboard

// #region memory-clipboard

// MemoryClipboard keeps copied text in memory. Fail makes every write
// return that error.
type MemoryClipboard struct {
	mu     sync.Mutex
	writes []string
	Fail   error
}

// NewMemoryClipboard returns an empty in-memory clipboard.
func NewMemoryClipboard() *MemoryClipboard {
	return &MemoryClipboard{}
}

func (m *MemoryClipboard) WriteText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.writes = append(m.writes, text)
	return nil
}

// Last returns the most recent successful write.
func (m *MemoryClipboard) Last() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return "", false
	}
	return m.writes[len(m.writes)-1], true
}

// Writes returns how many writes succeeded.
func (m *MemoryClipboard) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

// #endregion memory-clipboard
