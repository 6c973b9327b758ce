package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/harunnryd/wakecall/pkg/conversation"
	"github.com/harunnryd/wakecall/pkg/transports"
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")
	b.WriteString(m.footer())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) header() string {
	state := m.snap.State.String()
	badge := badgeStyle.Background(stateColor(state)).Render(strings.ToUpper(state))
	parts := []string{titleStyle.Render("wakecall"), badge}
	if m.snap.State == conversation.StateActive && !m.snap.CallStartedAt.IsZero() {
		parts = append(parts, mutedStyle.Render(formatElapsed(m.now.Sub(m.snap.CallStartedAt))))
	}
	if m.snap.Activation {
		if m.snap.State == conversation.StateListening {
			parts = append(parts, mutedStyle.Render("say the trigger phrase or press s"))
		}
	} else {
		parts = append(parts, mutedStyle.Render("manual mode"))
	}
	return strings.Join(parts, " ")
}

func (m Model) footer() string {
	switch {
	case m.status != "":
		return errorStyle.Render(m.status)
	case m.snap.State == conversation.StateError && m.snap.LastError != "":
		return errorStyle.Render("Error: " + m.snap.LastError)
	case m.snap.Notice != "":
		return noticeStyle.Render(m.snap.Notice)
	default:
		return ""
	}
}

func renderMessages(msgs []conversation.Message, width int) string {
	if len(msgs) == 0 {
		return mutedStyle.Render("No messages yet.")
	}
	if width <= 0 {
		width = 80
	}
	maxBubble := width * 3 / 4
	if maxBubble < 20 {
		maxBubble = width
	}
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, renderMessage(msg, width, maxBubble))
	}
	return strings.Join(lines, "\n")
}

func renderMessage(msg conversation.Message, width, maxBubble int) string {
	if msg.Kind == conversation.KindSystem {
		return lipgloss.PlaceHorizontal(width, lipgloss.Center, systemLine.Render(msg.Text))
	}
	style := assistantBubble
	align := lipgloss.Left
	label := "assistant"
	if msg.Role == transports.RoleUser {
		style = userBubble
		align = lipgloss.Right
		label = "you"
	}
	text := msg.Text
	if !msg.Complete {
		style = pendingBubble
		text += " …"
	}
	inner := lipgloss.Width(text) + 4
	if inner > maxBubble {
		inner = maxBubble
	}
	bubble := style.Width(inner - 2).Render(text)
	caption := mutedStyle.Render(label + " · " + msg.CreatedAt.Format("15:04:05"))
	block := lipgloss.JoinVertical(align, caption, bubble)
	return lipgloss.PlaceHorizontal(width, align, block)
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
