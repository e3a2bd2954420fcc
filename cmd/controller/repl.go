package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/app"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/controller"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/transition"
)

const helpText = `commands:
  <text>          send a message
  /refresh        regenerate the current prompt
  /mode <name>    switch to quick, deep or cracked
  /preserve       keep the conversation when switching
  /discard        start the new mode fresh
  /cancel         drop a pending switch
  /copy           copy the current prompt
  /reset          start over in this mode
  /status         show progress
  /quit           exit`

// #region repl
type repl struct {
	app    *app.App
	out    io.Writer
	styles styles
	// settle blocks until scheduled work has run. The wall-clock version
	// polls; tests advance a manual scheduler.
	settle  func(ctx context.Context)
	printed int
	epochID string
}

func newREPL(a *app.App, out io.Writer, settle func(ctx context.Context)) *repl {
	r := &repl{app: a, out: out, styles: newStyles(), settle: settle}
	if r.settle == nil {
		r.settle = r.pollIdle
	}
	return r
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, "Type a message, /help for commands.")
	r.flush()

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !sc.Scan() {
			break
		}
		quit, err := r.handle(ctx, sc.Text())
		if err != nil {
			return err
		}
		r.settle(ctx)
		r.flush()
		if quit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
	}
	return sc.Err()
}

// handle runs one input line. Widget errors are shown to the user; only
// closed-widget errors end the loop.
func (r *repl) handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	w := r.app.Widget

	if !strings.HasPrefix(line, "/") {
		_, err = w.Send(ctx, line)
		return false, r.report(err)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/refresh":
		_, err = w.Refresh(ctx)
	case "/mode":
		if len(fields) < 2 {
			fmt.Fprintln(r.out, "usage: /mode quick|deep|cracked")
			return false, nil
		}
		target := domain.Mode(strings.ToLower(fields[1]))
		var res transition.Result
		res, err = w.RequestMode(target)
		if err == nil && res.Outcome == transition.OutcomeNeedsChoice {
			fmt.Fprintf(r.out, "Switch to %s: /preserve keeps this conversation, /discard starts fresh, /cancel stays.\n", target.Title())
		}
	case "/preserve":
		_, err = w.ResolveMode(ctx, transition.Preserve)
	case "/discard":
		_, err = w.ResolveMode(ctx, transition.Discard)
	case "/cancel":
		var had bool
		if had, err = w.CancelMode(); err == nil && !had {
			fmt.Fprintln(r.out, "No mode switch pending.")
		}
	case "/copy":
		err = w.CopyAttachment(ctx)
	case "/reset":
		err = w.Reset()
	case "/status":
		fmt.Fprintln(r.out, r.styles.statusLine(w.View()))
	default:
		fmt.Fprintf(r.out, "unknown command %s (try /help)\n", fields[0])
	}
	return false, r.report(err)
}

// report prints recoverable errors the notifier did not already cover.
func (r *repl) report(err error) error {
	var ve *domain.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrClosed):
		return err
	case errors.As(err, &ve):
		fmt.Fprintf(r.out, "! %s\n", ve.Error())
	case errors.Is(err, controller.ErrBusy):
		fmt.Fprintln(r.out, "! Still working on your prompt, one moment.")
	case errors.Is(err, transition.ErrNoPendingTransition):
		fmt.Fprintln(r.out, "! No mode switch pending.")
	}
	return nil
}

// flush prints messages appended since the last call, then any notices.
func (r *repl) flush() {
	v := r.app.Widget.View()
	if len(v.Messages) > 0 && v.Messages[0].ID != r.epochID {
		// the log was replaced by a reset or a discarding switch
		r.epochID = v.Messages[0].ID
		r.printed = 0
	}
	for _, m := range v.Messages[r.printed:] {
		fmt.Fprintln(r.out, r.styles.message(m.Message))
	}
	r.printed = len(v.Messages)

	for _, n := range r.app.Notices.Drain() {
		fmt.Fprintln(r.out, r.styles.noticeLine(n))
	}
}

// pollIdle waits for pending generation and typing to finish.
func (r *repl) pollIdle(ctx context.Context) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if idle(r.app.Widget.View()) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func idle(v controller.View) bool {
	if v.Generating {
		return false
	}
	for _, m := range v.Messages {
		if m.Typing {
			return false
		}
	}
	return true
}

// #endregion repl
