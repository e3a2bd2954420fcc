package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/controller"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/eval"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/gate"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/policy"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/prompt"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/schedule"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/sinks"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/state"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/transition"
)

// #region types

// StepResult records what one fixture step did.
type StepResult struct {
	Index      int
	Op         string
	Action     string // policy action for send steps
	Outcome    string // transition outcome for mode steps
	Error      string // error kind, "none" on success
	Mismatches []string
	Eval       eval.EvalResult
}

// ReplayResult is the outcome of one fixture.
type ReplayResult struct {
	Name   string
	Steps  []StepResult
	Final  state.Snapshot
	Passed bool
}

// Mismatches flattens every step mismatch, prefixed with its step.
func (r ReplayResult) Mismatches() []string {
	var out []string
	for _, s := range r.Steps {
		for _, m := range s.Mismatches {
			out = append(out, fmt.Sprintf("step %d (%s): %s", s.Index, s.Op, m))
		}
	}
	return out
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	Fixtures   int
	Passed     int
	Failed     int
	TotalSteps int
}

// Named pairs a fixture with a display name, usually its path.
type Named struct {
	Name    string
	Fixture *Fixture
}

// #endregion types

// #region replay

// Replay drives a widget through the fixture on a virtual clock and checks
// expectations and state invariants after every step. The returned error
// is reserved for fixtures that cannot run at all.
func Replay(ctx context.Context, f *Fixture) (ReplayResult, error) {
	cat, err := prompt.DefaultCatalog()
	if err != nil {
		return ReplayResult{}, err
	}
	pol, g, cfg, err := buildConfig(f.Config)
	if err != nil {
		return ReplayResult{}, err
	}

	sched := schedule.NewManualScheduler()
	clip := sinks.NewMemoryClipboard()
	n := 0
	epoch := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w, err := controller.New(cfg, controller.Deps{
		Policy:    pol,
		Gate:      g,
		Catalog:   cat,
		Selector:  prompt.NewTemplateSelector(cat, f.Config.Seed),
		Scheduler: sched,
		Clipboard: clip,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return epoch.Add(sched.Now()) },
		NewID:     func() string { n++; return fmt.Sprintf("msg-%03d", n) },
	})
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	defer w.Close()

	harness := eval.NewEvalHarness(eval.EvalConfig{
		MaxRefreshes:     cfg.MaxRefreshes,
		MaxMessageLength: cfg.MaxMessageLength,
	})

	res := ReplayResult{Name: f.Description, Passed: true}
	prev := w.Snapshot()
	for i, step := range f.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		sr := runStep(ctx, w, sched, step)
		sr.Index = i
		if !f.Config.ManualClock {
			sched.RunAll()
		}

		cur := w.Snapshot()
		sr.Eval = harness.Run(&prev, cur)
		if !sr.Eval.Passed {
			sr.Mismatches = append(sr.Mismatches, sr.Eval.Reason)
		}
		if step.Expect != nil {
			sr.Mismatches = append(sr.Mismatches, compare(*step.Expect, sr, cur, w.Generating())...)
		}
		if len(sr.Mismatches) > 0 {
			res.Passed = false
		}
		res.Steps = append(res.Steps, sr)
		prev = cur
	}
	res.Final = w.Snapshot()
	return res, nil
}

func runStep(ctx context.Context, w *controller.Widget, sched *schedule.ManualScheduler, step FixtureStep) StepResult {
	sr := StepResult{Op: step.Op}
	var err error

	switch step.Op {
	case "send":
		var out controller.SendResult
		out, err = w.Send(ctx, step.Text)
		if err == nil {
			sr.Action = string(out.Action.Kind)
		}
	case "refresh":
		_, err = w.Refresh(ctx)
	case "request_mode":
		target := domain.Mode(step.Mode)
		if m, perr := domain.ParseMode(step.Mode); perr == nil {
			target = m
		}
		var out transition.Result
		out, err = w.RequestMode(target)
		sr.Outcome = string(out.Outcome)
	case "resolve":
		var res transition.Resolution
		if res, err = transition.ParseResolution(step.Resolution); err == nil {
			var out transition.Result
			out, err = w.ResolveMode(ctx, res)
			sr.Outcome = string(out.Outcome)
		}
	case "cancel":
		_, err = w.CancelMode()
	case "reset":
		err = w.Reset()
	case "advance":
		sched.Advance(time.Duration(step.AdvanceMS) * time.Millisecond)
	case "copy":
		err = w.CopyAttachment(ctx)
	default:
		err = fmt.Errorf("unknown op %q", step.Op)
	}

	sr.Error = ErrorKind(err)
	return sr
}

// #endregion replay

// #region run-all

// RunAll replays fixtures concurrently, at most workers at a time, and
// returns results in input order.
func RunAll(ctx context.Context, fixtures []Named, workers int) ([]ReplayResult, error) {
	if workers <= 0 {
		workers = 4
	}
	results := make([]ReplayResult, len(fixtures))

	p := pool.New().WithMaxGoroutines(workers).WithErrors().WithContext(ctx)
	for i, nf := range fixtures {
		p.Go(func(ctx context.Context) error {
			r, err := Replay(ctx, nf.Fixture)
			if err != nil {
				return fmt.Errorf("%s: %w", nf.Name, err)
			}
			r.Name = nf.Name
			results[i] = r
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{Fixtures: len(results)}
	for _, r := range results {
		s.TotalSteps += len(r.Steps)
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// #endregion run-all

// #region helpers

// ErrorKind names an error the way fixtures refer to it.
func ErrorKind(err error) string {
	var (
		ve *domain.ValidationError
		le *domain.LimitExceededError
		ce *domain.ClipboardError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &le):
		return "limit_exceeded"
	case errors.As(err, &ce):
		return "clipboard"
	case errors.Is(err, state.ErrNothingToRefresh):
		return "nothing_to_refresh"
	case errors.Is(err, transition.ErrNoPendingTransition):
		return "no_pending"
	case errors.Is(err, controller.ErrBusy):
		return "busy"
	case errors.Is(err, controller.ErrNothingToCopy):
		return "nothing_to_copy"
	case errors.Is(err, domain.ErrClosed):
		return "closed"
	}
	return "other"
}

func buildConfig(fc FixtureConfig) (*policy.Policy, *gate.Gate, controller.Config, error) {
	cfg := controller.DefaultConfig()
	if fc.Mode != "" {
		m, err := domain.ParseMode(fc.Mode)
		if err != nil {
			return nil, nil, cfg, err
		}
		cfg.InitialMode = m
	}
	if fc.MaxRefreshes > 0 {
		cfg.MaxRefreshes = fc.MaxRefreshes
	}
	if fc.GenerationDelayMS != nil {
		cfg.GenerationDelay = time.Duration(*fc.GenerationDelayMS) * time.Millisecond
	}

	pc := policy.DefaultConfig()
	if len(fc.Thresholds) > 0 {
		if len(fc.Thresholds) != 3 {
			return nil, nil, cfg, fmt.Errorf("thresholds: need 3 values, got %d", len(fc.Thresholds))
		}
		copy(pc.Thresholds[:], fc.Thresholds)
	}
	pol, err := policy.New(pc)
	if err != nil {
		return nil, nil, cfg, err
	}

	gc := gate.DefaultGateConfig()
	for name, n := range fc.Gate {
		m, err := domain.ParseMode(name)
		if err != nil {
			return nil, nil, cfg, fmt.Errorf("gate: %w", err)
		}
		gc.MinInteractions[m] = n
	}
	return pol, gate.NewGate(gc), cfg, nil
}

func compare(want FixtureExpect, sr StepResult, snap state.Snapshot, generating bool) []string {
	var out []string
	mismatch := func(field string, want, got any) {
		out = append(out, fmt.Sprintf("%s: want %v, got %v", field, want, got))
	}

	if want.Action != "" && want.Action != sr.Action {
		mismatch("action", want.Action, sr.Action)
	}
	if want.Outcome != "" && want.Outcome != sr.Outcome {
		mismatch("outcome", want.Outcome, sr.Outcome)
	}
	wantErr := want.Error
	if wantErr == "" {
		wantErr = "none"
	}
	if wantErr != sr.Error {
		mismatch("error", wantErr, sr.Error)
	}
	if want.Mode != "" && want.Mode != string(snap.Mode) {
		mismatch("mode", want.Mode, snap.Mode)
	}
	if want.InteractionCount != nil && *want.InteractionCount != snap.InteractionCount {
		mismatch("interaction_count", *want.InteractionCount, snap.InteractionCount)
	}
	if want.RefreshCount != nil && *want.RefreshCount != snap.RefreshCount {
		mismatch("refresh_count", *want.RefreshCount, snap.RefreshCount)
	}
	if want.CurrentTier != "" && want.CurrentTier != snap.CurrentTier.String() {
		mismatch("current_tier", want.CurrentTier, snap.CurrentTier)
	}
	if want.Messages != nil && *want.Messages != len(snap.Messages) {
		mismatch("messages", *want.Messages, len(snap.Messages))
	}
	if want.Attachments != nil {
		if got := snap.CountBySender()[domain.SenderAttachment]; got != *want.Attachments {
			mismatch("attachments", *want.Attachments, got)
		}
	}
	if want.Generating != nil && *want.Generating != generating {
		mismatch("generating", *want.Generating, generating)
	}
	last, _ := snap.LastMessage()
	if want.LastSender != "" && want.LastSender != string(last.Sender) {
		mismatch("last_sender", want.LastSender, last.Sender)
	}
	if want.LastContains != "" && !strings.Contains(last.Text, want.LastContains) {
		mismatch("last_contains", want.LastContains, last.Text)
	}
	return out
}

// #endregion helpers
