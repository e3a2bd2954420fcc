package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/gate"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/policy"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/prompt"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/schedule"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/state"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/transition"
)

// #region widget-struct

// Widget is the chat widget controller. One mutex serializes every state
// mutation, including scheduled continuations, so the conversation behaves
// like a single event loop.
type Widget struct {
	mu sync.Mutex

	cfg       Config
	conv      *state.Conversation
	trans     *transition.Controller
	gate      *gate.Gate
	sched     schedule.Scheduler
	typer     *schedule.Typewriter
	analytics domain.AnalyticsSink
	clipboard domain.Clipboard
	notifier  domain.Notifier
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	generation schedule.Handle
	generating bool
	closed     bool
}

// #endregion widget-struct

// #region constructor

// New builds a widget holding a single seed message in cfg.InitialMode.
func New(cfg Config, deps Deps) (*Widget, error) {
	if deps.Catalog == nil {
		return nil, errors.New("controller: catalog is required")
	}
	if !cfg.InitialMode.Valid() {
		return nil, fmt.Errorf("controller: initial mode: %q is not a mode", string(cfg.InitialMode))
	}

	pol := deps.Policy
	if pol == nil {
		var err error
		if pol, err = policy.New(policy.DefaultConfig()); err != nil {
			return nil, fmt.Errorf("controller: %w", err)
		}
	}
	g := deps.Gate
	if g == nil {
		g = gate.NewGate(gate.DefaultGateConfig())
	}
	sel := deps.Selector
	if sel == nil {
		seed := deps.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		sel = prompt.NewTemplateSelector(deps.Catalog, seed)
	}
	sched := deps.Scheduler
	if sched == nil {
		sched = schedule.NewTimerScheduler()
	}

	w := &Widget{
		cfg:       cfg,
		gate:      g,
		sched:     sched,
		typer:     schedule.NewTypewriter(sched, cfg.TypingInterval, cfg.TypingChunk),
		analytics: deps.Analytics,
		clipboard: deps.Clipboard,
		notifier:  deps.Notifier,
		logger:    deps.Logger.With().Str("component", "widget").Logger(),
	}
	if w.analytics == nil {
		w.analytics = nopAnalytics{}
	}
	if w.notifier == nil {
		w.notifier = nopNotifier{}
	}

	w.conv = state.New(cfg.InitialMode, pol, sel, deps.Catalog.Seed, state.Options{
		MaxRefreshes:     cfg.MaxRefreshes,
		MaxMessageLength: cfg.MaxMessageLength,
		Now:              deps.Now,
		NewID:            deps.NewID,
	})
	w.trans = transition.NewController(g, w.conv, deps.Catalog.Transition)
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.analytics.Record(catChat, "open", string(cfg.InitialMode))
	return w, nil
}

// #endregion constructor

// #region send

// Send submits a user message and acts on the policy decision: a canned
// question is typed out, a tier threshold schedules generation after the
// simulated delay, anything else waits.
func (w *Widget) Send(ctx context.Context, text string) (SendResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return SendResult{}, domain.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	if w.generating {
		return SendResult{}, ErrBusy
	}

	action, err := w.conv.SubmitUserMessage(text)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			w.analytics.Record(catChat, "invalid_message", ve.Reason)
			w.logger.Debug().Str("reason", ve.Reason).Int("length", ve.Length).Msg("message rejected")
		}
		return SendResult{}, err
	}
	snap := w.conv.Snapshot()
	msg, _ := snap.LastMessage()
	w.analytics.Record(catChat, "send_message", string(w.conv.Mode()))

	res := SendResult{Message: msg, Action: action}
	switch action.Kind {
	case policy.ActionAskQuestion:
		reply := w.conv.AppendSystemMessage(action.Question)
		w.typer.Start(reply.ID, reply.Text)
		res.Reply = &reply

	case policy.ActionGenerate:
		w.scheduleGeneration(action.Tier, w.conv.UserTopic())
		res.Generating = true

	case policy.ActionWait:
		w.logger.Debug().
			Int("interactions", w.conv.InteractionCount()).
			Str("reason", action.Reason).
			Msg("policy wait")
	}

	w.logger.Info().
		Str("mode", string(w.conv.Mode())).
		Int("interactions", w.conv.InteractionCount()).
		Str("action", string(action.Kind)).
		Msg("message accepted")
	return res, nil
}

// scheduleGeneration appends a prompt for tier after the generation delay.
// The selector runs without w.mu held; its result is dropped once the
// generation is no longer current.
func (w *Widget) scheduleGeneration(tier domain.Tier, topic string) {
	epoch := w.conv.Epoch()
	var h schedule.Handle
	h = w.sched.After(w.cfg.GenerationDelay, func() {
		w.mu.Lock()
		if !w.currentGenerationLocked(h, epoch) {
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		ctx, cancel := w.selectContext()
		text, err := w.conv.SelectText(ctx, tier, topic, false)
		cancel()

		w.mu.Lock()
		defer w.mu.Unlock()
		if !w.currentGenerationLocked(h, epoch) {
			return
		}
		w.generating = false
		w.generation = nil
		w.finishGenerationLocked(tier, topic, text, err)
	})
	w.generation = h
	w.generating = true
}

// currentGenerationLocked reports whether h is still the live generation. A
// superseded generation clears the busy flag it set.
func (w *Widget) currentGenerationLocked(h schedule.Handle, epoch int) bool {
	if w.closed || w.generation != h {
		return false
	}
	if w.conv.Epoch() != epoch {
		w.generating = false
		w.generation = nil
		return false
	}
	return true
}

func (w *Widget) finishGenerationLocked(tier domain.Tier, topic, text string, err error) {
	if err != nil {
		w.logger.Error().Err(err).Str("tier", tier.String()).Msg("generate attachment")
		w.notifier.Notify("Generation failed", "The prompt could not be generated. Try sending another message.", domain.VariantDestructive)
		w.analytics.Record(catPrompt, "generate_failed", tier.String())
		return
	}
	msg := w.conv.AppendAttachment(tier, topic, text, false)
	w.analytics.Record(catPrompt, "generate", tier.String())
	w.logger.Info().Str("tier", tier.String()).Str("message_id", msg.ID).Msg("attachment generated")
}

func (w *Widget) selectContext() (context.Context, context.CancelFunc) {
	if w.cfg.SelectTimeout > 0 {
		return context.WithTimeout(w.ctx, w.cfg.SelectTimeout)
	}
	return context.WithCancel(w.ctx)
}

// #endregion send

// #region refresh

// Refresh regenerates the current attachment with a random variant.
func (w *Widget) Refresh(ctx context.Context) (domain.Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return domain.Message{}, domain.ErrClosed
	}
	if w.generating {
		return domain.Message{}, ErrBusy
	}

	msg, err := w.conv.Refresh(ctx)
	if err != nil {
		var le *domain.LimitExceededError
		switch {
		case errors.As(err, &le):
			w.notifier.Notify("Refresh limit reached",
				fmt.Sprintf("You have used all %d refreshes for this prompt.", le.Max), domain.VariantWarning)
			w.analytics.Record(catPrompt, "refresh_limit", string(w.conv.Mode()))
		case errors.Is(err, state.ErrNothingToRefresh):
			w.notifier.Notify("Nothing to refresh", "Keep chatting to generate your first prompt.", domain.VariantDefault)
		default:
			w.logger.Error().Err(err).Msg("refresh")
			w.notifier.Notify("Refresh failed", "The prompt could not be regenerated.", domain.VariantDestructive)
		}
		return domain.Message{}, err
	}

	w.analytics.Record(catPrompt, "refresh", msg.TierLabel)
	w.logger.Info().
		Int("refresh_count", w.conv.RefreshCount()).
		Int("max_refreshes", w.conv.MaxRefreshes()).
		Msg("attachment refreshed")
	return msg, nil
}

// #endregion refresh

// #region mode

// RequestMode asks to switch to target. A blocked request is reported
// through the notifier and returned as a result, not an error.
func (w *Widget) RequestMode(target domain.Mode) (transition.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return transition.Result{}, domain.ErrClosed
	}
	if w.generating {
		res := transition.Result{
			Outcome: transition.OutcomeBlocked,
			From:    w.conv.Mode(),
			To:      target,
			Reason:  "wait for the current prompt to finish",
		}
		w.notifier.Notify("Mode locked", res.Reason, domain.VariantWarning)
		return res, nil
	}

	res := w.trans.Request(target)
	switch res.Outcome {
	case transition.OutcomeBlocked:
		w.notifier.Notify("Mode locked", res.Reason, domain.VariantWarning)
		w.analytics.Record(catMode, "blocked", string(target))
	case transition.OutcomeApplied:
		w.typer.FinalizeAll()
		w.analytics.Record(catMode, "switch", string(target))
	case transition.OutcomeNeedsChoice:
		w.analytics.Record(catMode, "choice_offered", string(target))
	}
	w.logger.Info().
		Str("from", string(res.From)).
		Str("to", string(target)).
		Str("outcome", string(res.Outcome)).
		Msg("mode requested")
	return res, nil
}

// ResolveMode applies Preserve or Discard to the pending mode request.
func (w *Widget) ResolveMode(ctx context.Context, res transition.Resolution) (transition.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return transition.Result{}, domain.ErrClosed
	}

	if res != transition.Preserve && res != transition.Discard {
		return transition.Result{}, fmt.Errorf("resolve mode: %w", transition.ErrUnknownResolution)
	}
	if _, ok := w.trans.Pending(); !ok {
		return transition.Result{}, transition.ErrNoPendingTransition
	}

	// A generation scheduled in the old mode must not land after the switch.
	if w.generating {
		w.cancelGenerationLocked()
		w.logger.Debug().Str("resolution", string(res)).Msg("scheduled generation cancelled by mode switch")
	}
	w.typer.FinalizeAll()
	out, err := w.trans.Resolve(ctx, res)
	if out.Notice != nil {
		w.typer.Start(out.Notice.ID, out.Notice.Text)
	}
	if err != nil {
		w.logger.Error().Err(err).Str("resolution", string(res)).Msg("resolve mode")
		w.notifier.Notify("Switch incomplete", out.Reason, domain.VariantDestructive)
		return out, err
	}

	w.analytics.Record(catMode, string(res), string(out.To))
	w.notifier.Notify(fmt.Sprintf("%s mode", out.To.Title()), out.Reason, domain.VariantDefault)
	w.logger.Info().
		Str("from", string(out.From)).
		Str("to", string(out.To)).
		Str("resolution", string(res)).
		Msg("mode switched")
	return out, nil
}

// CancelMode drops a pending mode request.
func (w *Widget) CancelMode() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false, domain.ErrClosed
	}
	had := w.trans.Cancel()
	if had {
		w.analytics.Record(catMode, "cancel", string(w.conv.Mode()))
	}
	return had, nil
}

// #endregion mode

// #region copy

// CopyAttachment writes the current prompt to the clipboard. A failed copy
// is reported and returned as *ClipboardError; the conversation is unchanged.
func (w *Widget) CopyAttachment(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return domain.ErrClosed
	}
	att, ok := w.conv.Attachment()
	clip := w.clipboard
	w.mu.Unlock()

	if !ok {
		w.notifier.Notify("Nothing to copy", "Generate a prompt first.", domain.VariantDefault)
		return ErrNothingToCopy
	}

	var err error
	if clip == nil {
		err = errors.New("no clipboard available")
	} else {
		err = clip.WriteText(ctx, att.Text)
	}
	if err != nil {
		w.logger.Warn().Err(err).Msg("copy attachment")
		w.notifier.Notify("Copy failed", "Your prompt could not be copied. Select it and copy manually.", domain.VariantDestructive)
		w.analytics.Record(catPrompt, "copy_failed", att.Tier.String())
		return &domain.ClipboardError{Err: err}
	}

	w.notifier.Notify("Copied", "Prompt copied to clipboard.", domain.VariantDefault)
	w.analytics.Record(catPrompt, "copy", att.Tier.String())
	return nil
}

// #endregion copy

// #region lifecycle

// Reset starts over in the current mode and cancels any pending work.
func (w *Widget) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return domain.ErrClosed
	}

	w.cancelGenerationLocked()
	w.typer.FinalizeAll()
	w.trans.Cancel()
	w.conv.Reset()
	w.analytics.Record(catChat, "reset", string(w.conv.Mode()))
	w.logger.Info().Int("epoch", w.conv.Epoch()).Msg("conversation reset")
	return nil
}

// Close tears the widget down. Pending continuations never fire after Close
// returns. Close is idempotent.
func (w *Widget) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.cancelGenerationLocked()
	w.typer.FinalizeAll()
	dropped := w.sched.CancelAll()
	w.cancel()
	w.analytics.Record(catChat, "close", string(w.conv.Mode()))
	w.mu.Unlock()

	// A running continuation may be waiting on w.mu; wait for it outside
	// the lock.
	if c, ok := w.sched.(interface{ Close() }); ok {
		c.Close()
	}
	w.logger.Debug().Int("dropped", dropped).Msg("widget closed")
	return nil
}

func (w *Widget) cancelGenerationLocked() {
	if w.generation != nil {
		w.generation.Cancel()
		w.generation = nil
	}
	w.generating = false
}

// #endregion lifecycle

// #region read

// View returns what a renderer should display right now.
func (w *Widget) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := w.conv.Snapshot()
	typingID, typing := w.typer.Typing()
	msgs := make([]ViewMessage, len(snap.Messages))
	for i, m := range snap.Messages {
		msgs[i] = ViewMessage{
			Message: m,
			Visible: w.typer.Visible(m.ID, m.Text),
			Typing:  typing && m.ID == typingID,
		}
	}
	next, remaining := w.conv.Policy().Progress(snap.InteractionCount)
	pending, _ := w.trans.Pending()

	return View{
		Messages:         msgs,
		Mode:             snap.Mode,
		InteractionCount: snap.InteractionCount,
		RefreshCount:     snap.RefreshCount,
		MaxRefreshes:     snap.MaxRefreshes,
		CanRefresh:       !w.closed && !w.generating && w.conv.CanRefresh(),
		CurrentTier:      snap.CurrentTier,
		NextTier:         next,
		Remaining:        remaining,
		Unlocked:         w.gate.Unlocked(snap.Mode, snap.InteractionCount),
		PendingMode:      pending,
		Generating:       w.generating,
		Closed:           w.closed,
	}
}

// Snapshot returns a deep copy of the conversation state.
func (w *Widget) Snapshot() state.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conv.Snapshot()
}

// Generating reports whether an attachment is scheduled.
func (w *Widget) Generating() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generating
}

// #endregion read
