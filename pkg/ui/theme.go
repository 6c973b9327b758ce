package ui

import "github.com/charmbracelet/lipgloss"

var (
	colorBase     = lipgloss.Color("#1e1e2e")
	colorSurface1 = lipgloss.Color("#45475a")
	colorText     = lipgloss.Color("#cdd6f4")
	colorSubtext  = lipgloss.Color("#a6adc8")
	colorLavender = lipgloss.Color("#b4befe")
	colorSapphire = lipgloss.Color("#74c7ec")
	colorGreen    = lipgloss.Color("#a6e3a1")
	colorPeach    = lipgloss.Color("#fab387")
	colorRed      = lipgloss.Color("#f38ba8")
	colorYellow   = lipgloss.Color("#f9e2af")

	titleStyle  = lipgloss.NewStyle().Foreground(colorSapphire).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorSubtext)
	noticeStyle = lipgloss.NewStyle().Foreground(colorYellow)
	errorStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)

	badgeStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(colorBase)

	bubbleStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Foreground(colorText)

	userBubble      = bubbleStyle.BorderForeground(colorLavender)
	assistantBubble = bubbleStyle.BorderForeground(colorGreen)
	pendingBubble   = bubbleStyle.BorderForeground(colorSurface1)
	systemLine      = lipgloss.NewStyle().Foreground(colorSubtext).Italic(true)
)

func stateColor(state string) lipgloss.Color {
	switch state {
	case "listening":
		return colorSapphire
	case "connecting":
		return colorYellow
	case "active":
		return colorGreen
	case "error":
		return colorRed
	case "ended":
		return colorPeach
	default:
		return colorSubtext
	}
}
