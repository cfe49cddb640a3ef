// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/weighdesk-tui/internal/ui/styles"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func answer(t *testing.T, cmd tea.Cmd) ConfirmResultMsg {
	t.Helper()
	require.NotNil(t, cmd)
	res, ok := cmd().(ConfirmResultMsg)
	require.True(t, ok)
	return res
}

// =============================================================================
// CONFIRM DIALOG
// =============================================================================

func TestConfirmDialog_EnterSelectsPrimaryByDefault(t *testing.T) {
	d := NewConfirmDialog()
	d.Show(7, "Session expiring", "Extend?", "Extend", "Log out", time.Time{})
	require.True(t, d.IsVisible())

	d, cmd := d.Update(keyMsg("enter"))
	res := answer(t, cmd)
	require.Equal(t, uint64(7), res.ID)
	require.True(t, res.Accepted)
	require.False(t, d.IsVisible())
}

func TestConfirmDialog_ToggleThenEnter(t *testing.T) {
	d := NewConfirmDialog()
	d.Show(1, "t", "m", "Extend", "Log out", time.Time{})

	d, cmd := d.Update(keyMsg("right"))
	require.Nil(t, cmd)
	_, cmd = d.Update(keyMsg("enter"))
	require.False(t, answer(t, cmd).Accepted)
}

func TestConfirmDialog_ShortcutKeys(t *testing.T) {
	for _, tt := range []struct {
		key  string
		want bool
	}{
		{"y", true},
		{"n", false},
		{"esc", false},
	} {
		d := NewConfirmDialog()
		d.Show(1, "t", "m", "Extend", "Log out", time.Time{})
		_, cmd := d.Update(keyMsg(tt.key))
		require.Equal(t, tt.want, answer(t, cmd).Accepted, tt.key)
	}
}

func TestConfirmDialog_HiddenIgnoresKeys(t *testing.T) {
	d := NewConfirmDialog()
	_, cmd := d.Update(keyMsg("enter"))
	require.Nil(t, cmd)
	require.Empty(t, d.View())
}

func TestConfirmDialog_ViewShowsCountdown(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewConfirmDialog()
	d.now = func() time.Time { return now }
	d.SetSize(80, 24)
	d.Show(1, "Session expiring", "Extend your session?", "Extend", "Log out", now.Add(95*time.Second))

	view := d.View()
	require.Contains(t, view, "Session expiring")
	require.Contains(t, view, "1:35")
	require.Contains(t, view, "Extend")
	require.Contains(t, view, "Log out")
}

func TestFormatCountdown(t *testing.T) {
	require.Equal(t, "0:00", FormatCountdown(-time.Second))
	require.Equal(t, "0:09", FormatCountdown(9*time.Second))
	require.Equal(t, "2:00", FormatCountdown(2*time.Minute))
	require.Equal(t, "61:01", FormatCountdown(61*time.Minute+time.Second))
}

// =============================================================================
// TOASTS
// =============================================================================

func TestToastManager_AddAndPrune(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewToastManager()
	m.now = func() time.Time { return now }

	info := m.Add(ToastInfo, "Signed out", "Session closed by user choice.", "")
	m.Add(ToastError, "Refresh failed", "The server did not respond in time.", "")
	require.Len(t, m.Toasts(), 2)
	require.Equal(t, ToastError, m.Toasts()[0].Kind, "newest first")

	now = now.Add(DefaultToastDuration)
	require.Equal(t, 1, m.Prune(), "info expires before error")

	now = now.Add(ErrorToastDuration)
	require.Equal(t, 0, m.Prune())

	m.Dismiss(info)
	require.Empty(t, m.View())
}

func TestToastManager_CapsVisible(t *testing.T) {
	m := NewToastManager()
	for i := 0; i < 5; i++ {
		m.Add(ToastInfo, "n", "", "")
	}
	require.Len(t, m.Toasts(), 3)
}

func TestToastManager_Dismiss(t *testing.T) {
	m := NewToastManager()
	a := m.Add(ToastSuccess, "Session extended", "", "")
	m.Add(ToastInfo, "b", "", "")
	m.Dismiss(a)
	require.Len(t, m.Toasts(), 1)
	require.Equal(t, "b", m.Toasts()[0].Title)
}

func TestToast_ViewIncludesIndicator(t *testing.T) {
	m := NewToastManager()
	m.Add(ToastError, "Refresh failed", "Unauthorized", "Sign in again")
	view := m.View()
	require.Contains(t, view, styles.StatusIndicators.Error)
	require.Contains(t, view, "Refresh failed")
	require.Contains(t, view, "Sign in again")
}

func TestToastKind_String(t *testing.T) {
	require.Equal(t, "info", ToastInfo.String())
	require.Equal(t, "success", ToastSuccess.String())
	require.Equal(t, "error", ToastError.String())
	require.Equal(t, "unknown", ToastKind(42).String())
}

// =============================================================================
// STATUS BAR
// =============================================================================

func TestStatusBar_FitsWidth(t *testing.T) {
	theme := styles.NewTheme("dark")
	bar := StatusBar{
		Width:         40,
		Username:      "operator-with-a-very-long-name",
		Server:        "https://scale.example.com/api",
		State:         "active",
		Remaining:     3*time.Minute + 5*time.Second,
		WarningWindow: 2 * time.Minute,
		Authenticated: true,
	}
	view := bar.View(theme)
	require.Equal(t, 40, lipgloss.Width(view))
	require.Contains(t, view, "expires in 3:05")
	require.True(t, strings.Contains(view, "..."), "left side is truncated")
}

func TestStatusBar_SignedOut(t *testing.T) {
	view := StatusBar{Width: 30}.View(styles.NewTheme("light"))
	require.Contains(t, view, "signed out")
}
