// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/weighdesk-tui/internal/ui/styles"
)

// =============================================================================
// CONFIRM DIALOG
// =============================================================================

// ConfirmResultMsg reports the operator's answer to the dialog with ID.
type ConfirmResultMsg struct {
	ID       uint64
	Accepted bool
}

// ConfirmKeyMap holds the dialog key bindings.
type ConfirmKeyMap struct {
	Toggle  key.Binding
	Submit  key.Binding
	Accept  key.Binding
	Decline key.Binding
}

// DefaultConfirmKeys returns the standard bindings.
func DefaultConfirmKeys() ConfirmKeyMap {
	return ConfirmKeyMap{
		Toggle: key.NewBinding(
			key.WithKeys("left", "right", "tab", "shift+tab"),
			key.WithHelp("←/→", "choose"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "confirm"),
		),
		Accept: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "primary"),
		),
		Decline: key.NewBinding(
			key.WithKeys("n", "esc"),
			key.WithHelp("n/esc", "secondary"),
		),
	}
}

// ConfirmDialog is a centred modal with a primary and a secondary button.
// Escape always selects the secondary button.
type ConfirmDialog struct {
	visible   bool
	id        uint64
	title     string
	message   string
	primary   string
	secondary string
	selected  int // 0 primary, 1 secondary

	deadline time.Time
	now      func() time.Time

	keys   ConfirmKeyMap
	width  int
	height int
}

// NewConfirmDialog creates a hidden dialog.
func NewConfirmDialog() ConfirmDialog {
	return ConfirmDialog{
		keys: DefaultConfirmKeys(),
		now:  time.Now,
	}
}

// SetSize sets the area the dialog is centred in.
func (d *ConfirmDialog) SetSize(width, height int) {
	d.width = width
	d.height = height
}

// Show opens the dialog. A non-zero deadline renders a countdown.
func (d *ConfirmDialog) Show(id uint64, title, message, primary, secondary string, deadline time.Time) {
	d.visible = true
	d.id = id
	d.title = title
	d.message = message
	d.primary = primary
	d.secondary = secondary
	d.selected = 0
	d.deadline = deadline
}

// Hide closes the dialog without producing an answer.
func (d *ConfirmDialog) Hide() {
	d.visible = false
}

// IsVisible returns whether the dialog is open.
func (d ConfirmDialog) IsVisible() bool {
	return d.visible
}

// ID returns the identifier of the open question.
func (d ConfirmDialog) ID() uint64 {
	return d.id
}

// Update handles keys while the dialog is open.
func (d ConfirmDialog) Update(msg tea.Msg) (ConfirmDialog, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if !d.visible {
			return d, nil
		}
		switch {
		case key.Matches(msg, d.keys.Toggle):
			d.selected = 1 - d.selected
		case key.Matches(msg, d.keys.Accept):
			return d.answer(true)
		case key.Matches(msg, d.keys.Decline):
			return d.answer(false)
		case key.Matches(msg, d.keys.Submit):
			return d.answer(d.selected == 0)
		}
	}
	return d, nil
}

func (d ConfirmDialog) answer(accepted bool) (ConfirmDialog, tea.Cmd) {
	d.visible = false
	id := d.id
	return d, func() tea.Msg {
		return ConfirmResultMsg{ID: id, Accepted: accepted}
	}
}

// View renders the dialog, or "" when hidden.
func (d ConfirmDialog) View() string {
	if !d.visible {
		return ""
	}

	width := d.width
	if width == 0 {
		width = 60
	}
	height := d.height
	if height == 0 {
		height = 20
	}
	maxWidth := width - 8
	if maxWidth < 36 {
		maxWidth = 36
	}
	if maxWidth > 60 {
		maxWidth = 60
	}

	var parts []string
	titleStyle := lipgloss.NewStyle().Foreground(styles.Amber).Bold(true)
	parts = append(parts, titleStyle.Render(styles.StatusIndicators.Warning+" "+d.title), "")

	msgStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary).
		Width(maxWidth - 8).
		Align(lipgloss.Center)
	parts = append(parts, msgStyle.Render(d.message))

	if !d.deadline.IsZero() {
		left := d.deadline.Sub(d.now())
		timeStyle := lipgloss.NewStyle().Foreground(styles.Amber).Bold(true)
		parts = append(parts, "", "Session ends in "+timeStyle.Render(FormatCountdown(left)))
	}

	parts = append(parts, "", d.buttons())

	hint := lipgloss.NewStyle().Foreground(styles.TextMuted).Italic(true)
	parts = append(parts, "", hint.Render("←/→ choose · enter confirm · esc "+d.secondary))

	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(styles.Amber).
		Padding(1, 3).
		Width(maxWidth).
		Align(lipgloss.Center).
		Render(lipgloss.JoinVertical(lipgloss.Center, parts...))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box,
		lipgloss.WithWhitespaceBackground(styles.SurfaceDim))
}

func (d ConfirmDialog) buttons() string {
	active := lipgloss.NewStyle().
		Foreground(styles.TextInverse).
		Background(styles.Purple).
		Bold(true).
		Padding(0, 2)
	inactive := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Background(styles.Overlay).
		Padding(0, 2)

	p, s := inactive, inactive
	if d.selected == 0 {
		p = active
	} else {
		s = active
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, p.Render(d.primary), "  ", s.Render(d.secondary))
}

// FormatCountdown formats a duration as M:SS.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}
	totalSecs := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", totalSecs/60, totalSecs%60)
}
