package domain

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by widget operations after teardown.
var ErrClosed = errors.New("widget closed")

// ValidationError rejects user input. It is recovered locally with inline
// feedback and never ends the conversation.
type ValidationError struct {
	Field  string
	Reason string
	Length int
	Max    int
}

func (e *ValidationError) Error() string {
	if e.Max > 0 && e.Length > e.Max {
		return fmt.Sprintf("invalid %s: %s (%d/%d characters)", e.Field, e.Reason, e.Length, e.Max)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// LimitExceededError reports that a usage cap was hit. It is surfaced as a
// non-fatal notice.
type LimitExceededError struct {
	Limit string
	Max   int
	Used  int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit reached (%d/%d)", e.Limit, e.Used, e.Max)
}

// ClipboardError wraps a failed copy. Conversation state is unaffected.
type ClipboardError struct {
	Err error
}

func (e *ClipboardError) Error() string {
	return fmt.Sprintf("copy to clipboard: %v", e.Err)
}

func (e *ClipboardError) Unwrap() error {
	return e.Err
}
