// Package form renders agent forms and run transcripts in a terminal.
package form

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors used by prompts and transcripts.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Warn    lipgloss.Color
	Error   lipgloss.Color
}

// DefaultTheme is the default palette.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#e3b341"),
	Error:   lipgloss.Color("#f85149"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Label   lipgloss.Style
	Hint    lipgloss.Style
	Banner  lipgloss.Style
	Details lipgloss.Style
	Reply   lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Label:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Hint:    lipgloss.NewStyle().Foreground(t.Dim),
		Banner:  lipgloss.NewStyle().Foreground(t.Primary),
		Details: lipgloss.NewStyle().Foreground(t.Dim),
		Reply:   lipgloss.NewStyle().Bold(true),
		Warn:    lipgloss.NewStyle().Foreground(t.Warn),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(t.Error),
	}
}
