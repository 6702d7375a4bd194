package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	successColor = lipgloss.Color("#0070F3")
	warningColor = lipgloss.Color("#F5A623")
	errorColor   = lipgloss.Color("#E00")
	mutedColor   = lipgloss.Color("#888")

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFF"))

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Bold(true)
)

// Success returns a styled success message
func Success(text string) string {
	return successStyle.Render("✓ " + text)
}

// Error returns a styled error message
func Error(text string) string {
	return errorStyle.Render("✗ " + text)
}

// Warning returns a styled warning message
func Warning(text string) string {
	return warningStyle.Render("⚠ " + text)
}

// Muted returns a styled muted text
func Muted(text string) string {
	return mutedStyle.Render(text)
}

// KeyValue returns a styled key-value pair
func KeyValue(key, value string) string {
	return labelStyle.Render(key+":") + " " + valueStyle.Render(value)
}

// Info renders an info box
func Info(title string, lines ...string) string {
	content := titleStyle.Render(title)
	if len(lines) > 0 {
		content += "\n\n"
		for i, line := range lines {
			if i > 0 {
				content += "\n"
			}
			content += line
		}
	}
	return boxStyle.Render(content)
}
