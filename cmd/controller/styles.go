package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/controller"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
	"github.com/danielpatrickdp/promptforge/go-controller/internal/sinks"
)

// #region palette
var (
	colorAccent  = lipgloss.Color("#8BC34A")
	colorMuted   = lipgloss.Color("#7a8599")
	colorWarning = lipgloss.Color("#e0a526")
	colorDanger  = lipgloss.Color("#e5534b")
)

type styles struct {
	user       lipgloss.Style
	system     lipgloss.Style
	attachment lipgloss.Style
	tier       lipgloss.Style
	status     lipgloss.Style
	notice     map[domain.Variant]lipgloss.Style
}

func newStyles() styles {
	return styles{
		user:   lipgloss.NewStyle().Bold(true),
		system: lipgloss.NewStyle().Foreground(colorAccent),
		attachment: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1),
		tier:   lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		status: lipgloss.NewStyle().Foreground(colorMuted),
		notice: map[domain.Variant]lipgloss.Style{
			domain.VariantDefault:     lipgloss.NewStyle().Foreground(colorAccent),
			domain.VariantWarning:     lipgloss.NewStyle().Foreground(colorWarning),
			domain.VariantDestructive: lipgloss.NewStyle().Foreground(colorDanger).Bold(true),
		},
	}
}

// #endregion palette

// #region render
func (s styles) message(m domain.Message) string {
	switch m.Sender {
	case domain.SenderUser:
		return s.user.Render("you> ") + m.Text
	case domain.SenderAttachment:
		label := s.tier.Render(fmt.Sprintf("prompt (%s)", m.TierLabel))
		return label + "\n" + s.attachment.Render(strings.TrimRight(m.Text, "\n"))
	}
	return s.system.Render("bot> " + m.Text)
}

func (s styles) noticeLine(n sinks.Notice) string {
	st, ok := s.notice[n.Variant]
	if !ok {
		st = s.notice[domain.VariantDefault]
	}
	line := "* " + n.Title
	if n.Description != "" {
		line += ": " + n.Description
	}
	return st.Render(line)
}

func (s styles) statusLine(v controller.View) string {
	parts := []string{
		fmt.Sprintf("mode %s", v.Mode),
		fmt.Sprintf("%d exchanges", v.InteractionCount),
		fmt.Sprintf("tier %s", v.CurrentTier),
	}
	if v.Remaining > 0 {
		parts = append(parts, fmt.Sprintf("%s in %d", v.NextTier, v.Remaining))
	}
	if v.CurrentTier != domain.TierNone {
		parts = append(parts, fmt.Sprintf("refreshes %d/%d", v.RefreshCount, v.MaxRefreshes))
	}
	var unlocked []string
	for _, m := range v.Unlocked {
		unlocked = append(unlocked, string(m))
	}
	if len(unlocked) > 0 {
		parts = append(parts, "unlocked "+strings.Join(unlocked, ","))
	}
	if v.PendingMode != "" {
		parts = append(parts, fmt.Sprintf("switching to %s: /preserve or /discard", v.PendingMode))
	}
	if v.Generating {
		parts = append(parts, "generating")
	}
	return s.status.Render("[" + strings.Join(parts, " | ") + "]")
}

// #endregion render
