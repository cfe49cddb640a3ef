// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	App         lipgloss.Style
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	Muted       lipgloss.Style
	Box         lipgloss.Style
	Label       lipgloss.Style
	FieldFocus  lipgloss.Style
	FieldBlur   lipgloss.Style
	ErrorText   lipgloss.Style
	Spinner     lipgloss.Style
	ShortcutKey lipgloss.Style
	ShortcutDsc lipgloss.Style

	StatusBar     lipgloss.Style
	SessionOK     lipgloss.Style
	SessionWarn   lipgloss.Style
	SessionExpire lipgloss.Style
}

// NewTheme creates a theme. name is "dark", "light" or empty for the
// terminal's own background.
func NewTheme(name string) *Theme {
	profile := termenv.ColorProfile()
	isDark := termenv.HasDarkBackground()
	switch name {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.App = lipgloss.NewStyle().Padding(1, 2)

	t.Title = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.Subtitle = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)

	t.Box = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(1, 3)

	t.Label = lipgloss.NewStyle().Foreground(TextSecondary).Width(10)
	t.FieldFocus = lipgloss.NewStyle().Foreground(Cyan)
	t.FieldBlur = lipgloss.NewStyle().Foreground(TextPrimary)
	t.ErrorText = lipgloss.NewStyle().Foreground(Rose)
	t.Spinner = lipgloss.NewStyle().Foreground(Cyan)

	t.ShortcutKey = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.ShortcutDsc = lipgloss.NewStyle().Foreground(TextMuted)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(SurfaceDim).
		Padding(0, 1)
	t.SessionOK = lipgloss.NewStyle().Foreground(Emerald).Background(SurfaceDim)
	t.SessionWarn = lipgloss.NewStyle().Foreground(Amber).Background(SurfaceDim).Bold(true)
	t.SessionExpire = lipgloss.NewStyle().Foreground(Rose).Background(SurfaceDim).Bold(true)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// RemainingStyle picks the countdown style for the time left on a session.
func (t *Theme) RemainingStyle(remaining, window time.Duration) lipgloss.Style {
	switch {
	case remaining <= 0:
		return t.SessionExpire
	case remaining <= window:
		return t.SessionWarn
	default:
		return t.SessionOK
	}
}
