// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/weighdesk-tui/internal/ui/styles"
	"github.com/jeranaias/weighdesk-tui/internal/util"
)

// =============================================================================
// TOAST TYPES
// =============================================================================

// ToastKind is the type of a toast notification.
type ToastKind int

const (
	ToastInfo ToastKind = iota
	ToastSuccess
	ToastError
)

// String returns the kind name.
func (k ToastKind) String() string {
	switch k {
	case ToastInfo:
		return "info"
	case ToastSuccess:
		return "success"
	case ToastError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	// DefaultToastDuration is how long info and success toasts stay.
	DefaultToastDuration = 5 * time.Second
	// ErrorToastDuration is longer so errors can be read.
	ErrorToastDuration = 10 * time.Second
	// toastWidth is the rendered width of one toast.
	toastWidth = 44
)

// Toast is a non-blocking notification.
type Toast struct {
	ID        int
	Kind      ToastKind
	Title     string
	Message   string
	Action    string
	CreatedAt time.Time
	Duration  time.Duration
}

// ToastTickMsg prompts the manager to drop expired toasts.
type ToastTickMsg struct{ Time time.Time }

// ToastTick schedules the next expiry check.
func ToastTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return ToastTickMsg{Time: t} })
}

// =============================================================================
// TOAST MANAGER
// =============================================================================

// ToastManager keeps the visible toasts, newest first.
type ToastManager struct {
	mu        sync.Mutex
	toasts    []Toast
	nextID    int
	maxToasts int
	now       func() time.Time
}

// NewToastManager creates a manager showing at most three toasts.
func NewToastManager() *ToastManager {
	return &ToastManager{nextID: 1, maxToasts: 3, now: time.Now}
}

// Add shows a toast and returns its ID.
func (m *ToastManager) Add(kind ToastKind, title, message, action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := DefaultToastDuration
	if kind == ToastError {
		d = ErrorToastDuration
	}
	t := Toast{
		ID:        m.nextID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Action:    action,
		CreatedAt: m.now(),
		Duration:  d,
	}
	m.nextID++

	m.toasts = append([]Toast{t}, m.toasts...)
	if len(m.toasts) > m.maxToasts {
		m.toasts = m.toasts[:m.maxToasts]
	}
	return t.ID
}

// Dismiss removes the toast with id.
func (m *ToastManager) Dismiss(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.toasts {
		if t.ID == id {
			m.toasts = append(m.toasts[:i], m.toasts[i+1:]...)
			return
		}
	}
}

// Prune drops expired toasts and returns how many remain.
func (m *ToastManager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	kept := m.toasts[:0]
	for _, t := range m.toasts {
		if now.Sub(t.CreatedAt) < t.Duration {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
	return len(m.toasts)
}

// Toasts returns a copy of the visible toasts.
func (m *ToastManager) Toasts() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Toast, len(m.toasts))
	copy(out, m.toasts)
	return out
}

// View renders the toasts stacked vertically.
func (m *ToastManager) View() string {
	toasts := m.Toasts()
	if len(toasts) == 0 {
		return ""
	}
	rendered := make([]string, 0, len(toasts))
	for _, t := range toasts {
		rendered = append(rendered, renderToast(t))
	}
	return lipgloss.JoinVertical(lipgloss.Right, rendered...)
}

func renderToast(t Toast) string {
	color, indicator := styles.Cyan, styles.StatusIndicators.Info
	switch t.Kind {
	case ToastSuccess:
		color, indicator = styles.Emerald, styles.StatusIndicators.Success
	case ToastError:
		color, indicator = styles.Rose, styles.StatusIndicators.Error
	}

	inner := toastWidth - 4
	var lines []string
	header := indicator
	if t.Title != "" {
		header += " " + t.Title
	}
	lines = append(lines, lipgloss.NewStyle().Foreground(color).Bold(true).
		Render(util.TruncateWidth(header, inner)))
	if t.Message != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(styles.TextPrimary).Width(inner).
			Render(t.Message))
	}
	if t.Action != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(styles.TextMuted).Italic(true).
			Render(util.TruncateWidth(t.Action, inner)))
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1).
		Width(toastWidth).
		Render(strings.Join(lines, "\n"))
}
