package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/policy"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/prompt"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/schedule"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/sinks"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/state"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/transition"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// #region helpers
type event struct{ category, action, label string }

type recordingAnalytics struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingAnalytics) Record(category, action, label string) {
	r.mu.Lock()
	r.events = append(r.events, event{category, action, label})
	r.mu.Unlock()
}

func (r *recordingAnalytics) has(category, action string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.category == category && e.action == action {
			return true
		}
	}
	return false
}

type harness struct {
	w         *Widget
	sched     *schedule.ManualScheduler
	cat       *prompt.Catalog
	notes     *sinks.RecordingNotifier
	clip      *sinks.MemoryClipboard
	analytics *recordingAnalytics
}

func newHarness(t *testing.T) harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith uses sel in place of the seeded template selector.
func newHarnessWith(t *testing.T, sel prompt.Selector) harness {
	t.Helper()
	cat, err := prompt.DefaultCatalog()
	require.NoError(t, err)

	h := harness{
		sched:     schedule.NewManualScheduler(),
		cat:       cat,
		notes:     sinks.NewRecordingNotifier(),
		clip:      sinks.NewMemoryClipboard(),
		analytics: &recordingAnalytics{},
	}
	n := 0
	h.w, err = New(DefaultConfig(), Deps{
		Catalog:   cat,
		Selector:  sel,
		Scheduler: h.sched,
		Analytics: h.analytics,
		Clipboard: h.clip,
		Notifier:  h.notes,
		Logger:    zerolog.Nop(),
		NewID:     func() string { n++; return fmt.Sprintf("m%d", n) },
		Seed:      11,
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.w.Close() })
	return h
}

func (h harness) send(t *testing.T, texts ...string) SendResult {
	t.Helper()
	var last SendResult
	for _, s := range texts {
		res, err := h.w.Send(context.Background(), s)
		require.NoError(t, err)
		last = res
	}
	return last
}

// sendAndSettle sends and lets any scheduled generation complete.
func (h harness) sendAndSettle(t *testing.T, texts ...string) {
	t.Helper()
	for _, s := range texts {
		h.send(t, s)
		h.sched.RunAll()
	}
}

func attachmentCount(snap state.Snapshot) int {
	n := 0
	for _, m := range snap.Messages {
		if m.Sender == domain.SenderAttachment {
			n++
		}
	}
	return n
}

// blockingSelector parks the first Select call until release is closed.
type blockingSelector struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newBlockingSelector() *blockingSelector {
	return &blockingSelector{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSelector) Select(ctx context.Context, tier domain.Tier, topic string, _ bool) (string, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
		return tier.String() + ": " + topic, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// #endregion helpers

// #region send-tests
func TestWidgetStartsWithSeed(t *testing.T) {
	h := newHarness(t)
	v := h.w.View()
	require.Len(t, v.Messages, 1)
	assert.Equal(t, h.cat.Seed(domain.ModeQuick), v.Messages[0].Text)
	assert.Equal(t, domain.Tier1, v.NextTier)
	assert.Equal(t, 3, v.Remaining)
	assert.Empty(t, v.Unlocked)
	assert.True(t, h.analytics.has(catChat, "open"))
}

func TestWidgetScenarioA_TypedQuestion(t *testing.T) {
	h := newHarness(t)
	res := h.send(t, "a landing page")

	require.Equal(t, policy.ActionAskQuestion, res.Action.Kind)
	require.NotNil(t, res.Reply)
	first := policy.DefaultConfig().Questions[domain.ModeQuick][0][0]
	assert.Equal(t, first, res.Reply.Text)

	v := h.w.View()
	last := v.Messages[len(v.Messages)-1]
	assert.True(t, last.Typing)
	assert.Empty(t, last.Visible)

	h.sched.Advance(20 * time.Millisecond)
	v = h.w.View()
	assert.Len(t, []rune(v.Messages[len(v.Messages)-1].Visible), 2)

	h.sched.RunAll()
	v = h.w.View()
	last = v.Messages[len(v.Messages)-1]
	assert.False(t, last.Typing)
	assert.Equal(t, first, last.Visible)
}

func TestWidgetGenerationWaitsForDelay(t *testing.T) {
	h := newHarness(t)
	h.sendAndSettle(t, "a", "b")
	res := h.send(t, "c")

	require.Equal(t, policy.ActionGenerate, res.Action.Kind)
	assert.True(t, res.Generating)
	assert.True(t, h.w.Generating())
	assert.Nil(t, h.w.Snapshot().Attachment)

	h.sched.Advance(1499 * time.Millisecond)
	assert.Nil(t, h.w.Snapshot().Attachment)

	h.sched.Advance(time.Millisecond)
	snap := h.w.Snapshot()
	require.NotNil(t, snap.Attachment)
	want, err := h.cat.Render(domain.Tier1, 0, "a b c")
	require.NoError(t, err)
	assert.Equal(t, want, snap.Attachment.Text)
	assert.Equal(t, domain.Tier1, snap.CurrentTier)
	assert.False(t, h.w.Generating())
	assert.True(t, h.analytics.has(catPrompt, "generate"))
}

func TestWidgetBusyWhileGenerating(t *testing.T) {
	h := newHarness(t)
	h.sendAndSettle(t, "a", "b")
	h.send(t, "c")

	_, err := h.w.Send(context.Background(), "d")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = h.w.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	res, err := h.w.RequestMode(domain.ModeDeep)
	require.NoError(t, err)
	assert.Equal(t, transition.OutcomeBlocked, res.Outcome)
	assert.Equal(t, 3, h.w.Snapshot().InteractionCount)
}

func TestWidgetValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.w.Send(context.Background(), "   ")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)

	long := make([]rune, 201)
	for i := range long {
		long[i] = 'x'
	}
	_, err = h.w.Send(context.Background(), string(long))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 201, ve.Length)

	assert.Zero(t, h.w.Snapshot().InteractionCount)
	assert.Len(t, h.w.Snapshot().Messages, 1)
	assert.True(t, h.analytics.has(catChat, "invalid_message"))
}

// #endregion send-tests

// #region refresh-tests
func TestWidgetScenarioC_RefreshLimit(t *testing.T) {
	h := newHarness(t)
	h.sendAndSettle(t, "a", "b", "c")

	for i := 1; i <= 3; i++ {
		msg, err := h.w.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tier1", msg.TierLabel)
		assert.Equal(t, i, h.w.Snapshot().RefreshCount)
	}
	assert.False(t, h.w.View().CanRefresh)

	_, err := h.w.Refresh(context.Background())
	var le *domain.LimitExceededError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 3, h.w.Snapshot().RefreshCount)

	note, ok := h.notes.Last()
	require.True(t, ok)
	assert.Equal(t, domain.VariantWarning, note.Variant)
	assert.Equal(t, 4, h.w.Snapshot().CountBySender()[domain.SenderAttachment])
}

func TestWidgetRefreshBeforeGeneration(t *testing.T) {
	h := newHarness(t)
	_, err := h.w.Refresh(context.Background())
	assert.Error(t, err)
	note, ok := h.notes.Last()
	require.True(t, ok)
	assert.Equal(t, "Nothing to refresh", note.Title)
}

// #endregion refresh-tests

// #region mode-tests
func TestWidgetModeBlockedNotifies(t *testing.T) {
	h := newHarness(t)
	h.sendAndSettle(t, "a", "b")

	res, err := h.w.RequestMode(domain.ModeDeep)
	require.NoError(t, err)
	assert.Equal(t, transition.OutcomeBlocked, res.Outcome)
	note, ok := h.notes.Last()
	require.True(t, ok)
	assert.Equal(t, domain.VariantWarning, note.Variant)
	assert.True(t, h.analytics.has(catMode, "blocked"))
}

func TestWidgetPreserveTypesNotice(t *testing.T) {
	h := newHarness(t)
	h.sendAndSettle(t, "a", "b", "c")

	res, err := h.w.RequestMode(domain.ModeDeep)
	require.NoError(t, err)
	require.Equal(t, transition.OutcomeNeedsChoice, res.Outcome)
	assert.Equal(t, domain.ModeDeep, h.w.View().PendingMode)

	res, err = h.w.ResolveMode(context.Background(), transition.Preserve)
	require.NoError(t, err)
	require.NotNil(t, res.Notice)

	v := h.w.View()
	assert.Equal(t, domain.ModeDeep, v.Mode)
	assert.Empty(t, v.PendingMode)
	assert.Equal(t, domain.Tier2, v.CurrentTier)
	last := v.Messages[len(v.Messages)-1]
	assert.Equal(t, domain.SenderAttachment, last.Sender)

	h.sched.RunAll()
	for _, m := range h.w.View().Messages {
		assert.Equal(t, m.Text, m.Visible)
	}
}

func TestWidgetDiscardAndCancel(t *testing.T) {
	h := newHarness(t)
	h.sendAndSettle(t, "a", "b", "c", "d", "e", "f")

	_, err := h.w.RequestMode(domain.ModeCracked)
	require.NoError(t, err)
	had, err := h.w.CancelMode()
	require.NoError(t, err)
	assert.True(t, had)

	_, err = h.w.ResolveMode(context.Background(), transition.Discard)
	assert.ErrorIs(t, err, transition.ErrNoPendingTransition)

	_, err = h.w.RequestMode(domain.ModeCracked)
	require.NoError(t, err)
	_, err = h.w.ResolveMode(context.Background(), transition.Discard)
	require.NoError(t, err)

	snap := h.w.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, h.cat.Seed(domain.ModeCracked), snap.Messages[0].Text)
	assert.Zero(t, snap.InteractionCount)
}

// pendingChoiceWhileGenerating leaves a deep-mode choice pending with a
// tier2 generation scheduled behind it.
func pendingChoiceWhileGenerating(t *testing.T, h harness) {
	t.Helper()
	h.sendAndSettle(t, "a", "b", "c")
	res, err := h.w.RequestMode(domain.ModeDeep)
	require.NoError(t, err)
	require.Equal(t, transition.OutcomeNeedsChoice, res.Outcome)

	sent := h.send(t, "d", "e", "f")
	require.True(t, sent.Generating)
	require.True(t, h.w.Generating())
}

func TestWidgetPreserveDuringGeneration(t *testing.T) {
	h := newHarness(t)
	pendingChoiceWhileGenerating(t, h)

	res, err := h.w.ResolveMode(context.Background(), transition.Preserve)
	require.NoError(t, err)
	require.NotNil(t, res.Attachment)
	assert.False(t, h.w.Generating())
	require.Equal(t, 2, attachmentCount(h.w.Snapshot()))

	h.sched.RunAll()
	snap := h.w.Snapshot()
	assert.Equal(t, 2, attachmentCount(snap))
	assert.Equal(t, res.Attachment.ID, snap.Attachment.MessageID)
	assert.Equal(t, domain.ModeDeep, snap.Mode)
	assert.Equal(t, domain.Tier2, snap.CurrentTier)

	_, err = h.w.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.w.Snapshot().RefreshCount)
}

func TestWidgetDiscardDuringGeneration(t *testing.T) {
	h := newHarness(t)
	pendingChoiceWhileGenerating(t, h)

	_, err := h.w.ResolveMode(context.Background(), transition.Discard)
	require.NoError(t, err)
	assert.False(t, h.w.Generating())

	h.sched.RunAll()
	snap := h.w.Snapshot()
	assert.Zero(t, attachmentCount(snap))
	assert.Len(t, snap.Messages, 1)
	assert.Equal(t, domain.ModeDeep, snap.Mode)
	assert.False(t, h.w.Generating())

	res := h.send(t, "again")
	assert.Equal(t, policy.ActionAskQuestion, res.Action.Kind)
}

func TestWidgetResolveUnknownKeepsPending(t *testing.T) {
	h := newHarness(t)
	h.sendAndSettle(t, "a", "b", "c")
	_, err := h.w.RequestMode(domain.ModeDeep)
	require.NoError(t, err)
	before := len(h.notes.Notices())

	_, err = h.w.ResolveMode(context.Background(), transition.Resolution("maybe"))
	assert.ErrorIs(t, err, transition.ErrUnknownResolution)
	assert.Len(t, h.notes.Notices(), before)
	assert.Equal(t, domain.ModeDeep, h.w.View().PendingMode)
}

// #endregion mode-tests

// #region copy-tests
func TestWidgetCopyAttachment(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.w.CopyAttachment(context.Background()), ErrNothingToCopy)

	h.sendAndSettle(t, "a", "b", "c")
	require.NoError(t, h.w.CopyAttachment(context.Background()))
	got, ok := h.clip.Last()
	require.True(t, ok)
	assert.Equal(t, h.w.Snapshot().Attachment.Text, got)
}

func TestWidgetCopyFailureLeavesState(t *testing.T) {
	h := newHarness(t)
	h.sendAndSettle(t, "a", "b", "c")
	before := h.w.Snapshot()

	h.clip.Fail = errors.New("permission denied")
	err := h.w.CopyAttachment(context.Background())
	var ce *domain.ClipboardError
	require.ErrorAs(t, err, &ce)
	assert.EqualError(t, ce.Err, "permission denied")

	assert.Equal(t, before, h.w.Snapshot())
	note, ok := h.notes.Last()
	require.True(t, ok)
	assert.Equal(t, domain.VariantDestructive, note.Variant)
}

// #endregion copy-tests

// #region lifecycle-tests
func TestWidgetResetCancelsPendingGeneration(t *testing.T) {
	h := newHarness(t)
	h.sendAndSettle(t, "a", "b")
	h.send(t, "c")

	require.NoError(t, h.w.Reset())
	assert.Zero(t, h.sched.Pending())
	h.sched.RunAll()

	snap := h.w.Snapshot()
	assert.Nil(t, snap.Attachment)
	assert.Len(t, snap.Messages, 1)
	assert.False(t, h.w.Generating())

	// The widget keeps working after a reset.
	res := h.send(t, "again")
	assert.Equal(t, policy.ActionAskQuestion, res.Action.Kind)
}

func TestWidgetResetWithPendingChoiceWhileGenerating(t *testing.T) {
	h := newHarness(t)
	pendingChoiceWhileGenerating(t, h)

	require.NoError(t, h.w.Reset())
	h.sched.RunAll()
	snap := h.w.Snapshot()
	assert.Zero(t, attachmentCount(snap))
	assert.Equal(t, domain.ModeQuick, snap.Mode)
	assert.Empty(t, h.w.View().PendingMode)
	assert.False(t, h.w.Generating())
}

func TestWidgetCloseWithPendingChoiceWhileGenerating(t *testing.T) {
	h := newHarness(t)
	pendingChoiceWhileGenerating(t, h)

	require.NoError(t, h.w.Close())
	assert.Zero(t, h.sched.Pending())
	assert.False(t, h.w.Generating())
	assert.Equal(t, 1, attachmentCount(h.w.Snapshot()))
}

func TestWidgetSelectorRunsWithoutLock(t *testing.T) {
	sel := newBlockingSelector()
	h := newHarnessWith(t, sel)
	h.sendAndSettle(t, "a", "b")
	h.send(t, "c")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sched.RunAll()
	}()
	<-sel.entered

	v := h.w.View()
	assert.True(t, v.Generating)
	_, err := h.w.Send(context.Background(), "d")
	assert.ErrorIs(t, err, ErrBusy)

	close(sel.release)
	<-done
	snap := h.w.Snapshot()
	require.NotNil(t, snap.Attachment)
	assert.Equal(t, "tier1: a b c", snap.Attachment.Text)
	assert.False(t, h.w.Generating())
}

func TestWidgetResetDuringSelectionDropsResult(t *testing.T) {
	sel := newBlockingSelector()
	h := newHarnessWith(t, sel)
	h.sendAndSettle(t, "a", "b")
	h.send(t, "c")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sched.RunAll()
	}()
	<-sel.entered

	require.NoError(t, h.w.Reset())
	close(sel.release)
	<-done

	snap := h.w.Snapshot()
	assert.Zero(t, attachmentCount(snap))
	assert.Len(t, snap.Messages, 1)
	assert.False(t, h.w.Generating())
	res := h.send(t, "again")
	assert.Equal(t, policy.ActionAskQuestion, res.Action.Kind)
}

func TestWidgetClosedRejectsEverything(t *testing.T) {
	h := newHarness(t)
	h.sendAndSettle(t, "a", "b")
	h.send(t, "c")
	require.NoError(t, h.w.Close())
	require.NoError(t, h.w.Close())

	assert.Zero(t, h.sched.Pending())
	h.sched.RunAll()
	assert.Nil(t, h.w.Snapshot().Attachment)

	ctx := context.Background()
	_, err := h.w.Send(ctx, "x")
	assert.ErrorIs(t, err, domain.ErrClosed)
	_, err = h.w.Refresh(ctx)
	assert.ErrorIs(t, err, domain.ErrClosed)
	_, err = h.w.RequestMode(domain.ModeDeep)
	assert.ErrorIs(t, err, domain.ErrClosed)
	_, err = h.w.ResolveMode(ctx, transition.Preserve)
	assert.ErrorIs(t, err, domain.ErrClosed)
	_, err = h.w.CancelMode()
	assert.ErrorIs(t, err, domain.ErrClosed)
	assert.ErrorIs(t, h.w.CopyAttachment(ctx), domain.ErrClosed)
	assert.ErrorIs(t, h.w.Reset(), domain.ErrClosed)
	assert.True(t, h.w.View().Closed)
}

func TestWidgetWallClockCloseLeavesNoTimers(t *testing.T) {
	cat, err := prompt.DefaultCatalog()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.GenerationDelay = time.Hour
	cfg.TypingInterval = time.Millisecond

	w, err := New(cfg, Deps{Catalog: cat, Logger: zerolog.Nop(), Seed: 1})
	require.NoError(t, err)
	for _, s := range []string{"a", "b", "c"} {
		_, err := w.Send(context.Background(), s)
		require.NoError(t, err)
	}
	require.True(t, w.Generating())
	require.NoError(t, w.Close())

	goleak.VerifyNone(t)
	assert.Nil(t, w.Snapshot().Attachment)
}

func TestWidgetWallClockGenerates(t *testing.T) {
	cat, err := prompt.DefaultCatalog()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.GenerationDelay = 5 * time.Millisecond
	cfg.TypingInterval = 0

	w, err := New(cfg, Deps{Catalog: cat, Logger: zerolog.Nop(), Seed: 1})
	require.NoError(t, err)
	defer w.Close()

	for _, s := range []string{"a", "b", "c"} {
		_, err := w.Send(context.Background(), s)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return w.Snapshot().Attachment != nil }, time.Second, 5*time.Millisecond)
}

func TestNewRequiresCatalog(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)

	cat, err := prompt.DefaultCatalog()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.InitialMode = "turbo"
	_, err = New(cfg, Deps{Catalog: cat})
	assert.Error(t, err)
}

// #endregion lifecycle-tests
