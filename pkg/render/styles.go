// Package render draws a conversation for the terminal.
package render

import (
	"github.com/charmbracelet/lipgloss"
)

// Warm palette shared by every surface.
var (
	ColorMuted      = lipgloss.Color("#5c5044")
	ColorForeground = lipgloss.Color("#ab937b")
	ColorLight      = lipgloss.Color("#d3b597")
	ColorRed        = lipgloss.Color("#d95f5f")
	ColorOrange     = lipgloss.Color("#eb8755")
	ColorYellow     = lipgloss.Color("#f5b761")
	ColorGreen      = lipgloss.Color("#93b56b")
	ColorCyan       = lipgloss.Color("#61afaf")
	ColorBlue       = lipgloss.Color("#6b93b5")
)

type Styles struct {
	UserMessage      lipgloss.Style
	AssistantMessage lipgloss.Style
	WelcomeMessage   lipgloss.Style
	SearchQuery      lipgloss.Style
	StatusMessage    lipgloss.Style
	ErrorMessage     lipgloss.Style
	Loading          lipgloss.Style

	ClipIndex lipgloss.Style
	ClipTitle lipgloss.Style
	ClipRange lipgloss.Style
	ClipScore lipgloss.Style
	ClipURL   lipgloss.Style
	ClipBox   lipgloss.Style
}

func DefaultStyles() *Styles {
	return &Styles{
		UserMessage: lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true),
		AssistantMessage: lipgloss.NewStyle().
			Foreground(ColorLight),
		WelcomeMessage: lipgloss.NewStyle().
			Foreground(ColorGreen).
			Italic(true),
		SearchQuery: lipgloss.NewStyle().
			Foreground(ColorMuted).
			Italic(true),
		StatusMessage: lipgloss.NewStyle().
			Foreground(ColorCyan),
		ErrorMessage: lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true),
		Loading: lipgloss.NewStyle().
			Foreground(ColorMuted).
			Italic(true),

		ClipIndex: lipgloss.NewStyle().Foreground(ColorOrange),
		ClipTitle: lipgloss.NewStyle().Foreground(ColorForeground).Bold(true),
		ClipRange: lipgloss.NewStyle().Foreground(ColorBlue),
		ClipScore: lipgloss.NewStyle().Foreground(ColorMuted),
		ClipURL:   lipgloss.NewStyle().Foreground(ColorMuted).Underline(true),
		ClipBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1),
	}
}
