package eval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/state"
)

// #region eval-harness
// EvalHarness checks conversation snapshots against the state invariants.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks cur on its own and, when prev is from the same epoch, the
// transition prev -> cur. Pass nil for prev on the first snapshot.
func (h *EvalHarness) Run(prev *state.Snapshot, cur state.Snapshot) EvalResult {
	var metrics []EvalMetric
	var failReasons []string

	check := func(name string, value float32, pass bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Refresh counter bounded.
	check("refresh_bound", float32(cur.RefreshCount),
		cur.RefreshCount >= 0 && cur.RefreshCount <= h.config.MaxRefreshes,
		fmt.Sprintf("refresh count %d outside [0, %d]", cur.RefreshCount, h.config.MaxRefreshes))

	// 2. Log starts with a system message.
	seeded := len(cur.Messages) > 0 && cur.Messages[0].Sender == domain.SenderSystem
	check("seed_first", float32(len(cur.Messages)), seeded, "log does not start with a system message")

	// 3. Every user message is counted.
	users := cur.CountBySender()[domain.SenderUser]
	check("interaction_count_matches_log", float32(cur.InteractionCount),
		users == cur.InteractionCount,
		fmt.Sprintf("interaction count %d but %d user messages", cur.InteractionCount, users))

	// 4. User messages are within bounds.
	longest := 0
	empty := false
	for _, m := range cur.Messages {
		if m.Sender != domain.SenderUser {
			continue
		}
		if strings.TrimSpace(m.Text) == "" {
			empty = true
		}
		longest = max(longest, utf8.RuneCountInString(m.Text))
	}
	check("user_message_length", float32(longest),
		!empty && longest <= h.config.MaxMessageLength,
		fmt.Sprintf("user message of %d characters (max %d, empty=%v)", longest, h.config.MaxMessageLength, empty))

	// 5. Exactly one current attachment, and it is the newest one.
	attPass, attReason := checkAttachment(cur)
	check("single_current_attachment", boolValue(cur.Attachment != nil), attPass, attReason)

	// 6. The attachment tier never exceeds the conversation tier.
	tierOK := cur.Attachment == nil || cur.Attachment.Tier <= cur.CurrentTier
	check("attachment_tier", float32(cur.CurrentTier), tierOK, "attachment tier above current tier")

	if prev != nil && prev.Epoch == cur.Epoch {
		// 7. Tier only advances.
		check("tier_monotonic", float32(cur.CurrentTier-prev.CurrentTier),
			cur.CurrentTier >= prev.CurrentTier,
			fmt.Sprintf("tier regressed from %s to %s", prev.CurrentTier, cur.CurrentTier))

		// 8. Interaction count never decreases.
		check("interaction_monotonic", float32(cur.InteractionCount-prev.InteractionCount),
			cur.InteractionCount >= prev.InteractionCount,
			fmt.Sprintf("interaction count fell from %d to %d", prev.InteractionCount, cur.InteractionCount))

		// 9. The log is append-only.
		check("append_only", float32(len(cur.Messages)-len(prev.Messages)),
			isPrefix(prev.Messages, cur.Messages),
			"earlier messages were changed or removed")
	}

	reason := "all checks passed"
	passed := len(failReasons) == 0
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
func checkAttachment(s state.Snapshot) (bool, string) {
	lastID := ""
	for _, m := range s.Messages {
		if m.Sender == domain.SenderAttachment {
			lastID = m.ID
		}
	}
	if s.Attachment == nil {
		if lastID != "" {
			return false, "attachment messages in the log but no current attachment"
		}
		return true, ""
	}
	if lastID != s.Attachment.MessageID {
		return false, fmt.Sprintf("current attachment %s is not the newest attachment message", s.Attachment.MessageID)
	}
	return true, ""
}

func isPrefix(prev, cur []domain.Message) bool {
	if len(prev) > len(cur) {
		return false
	}
	for i := range prev {
		if prev[i].ID != cur[i].ID || prev[i].Text != cur[i].Text || prev[i].Sender != cur[i].Sender {
			return false
		}
	}
	return true
}

func boolValue(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
