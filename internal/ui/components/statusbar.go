// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"time"

	"github.com/jeranaias/weighdesk-tui/internal/ui/styles"
	"github.com/jeranaias/weighdesk-tui/internal/util"
)

// StatusBar is the bottom line of the home screen.
type StatusBar struct {
	Width         int
	Username      string
	Server        string
	State         string
	Remaining     time.Duration
	WarningWindow time.Duration
	Authenticated bool
}

// View renders the bar at Width columns. The right-hand countdown always
// wins space over the left-hand labels.
func (s StatusBar) View(theme *styles.Theme) string {
	width := s.Width
	if width <= 0 {
		width = 80
	}

	right := "signed out"
	rightStyle := theme.SessionExpire
	if s.Authenticated {
		right = "expires in " + FormatCountdown(s.Remaining)
		rightStyle = theme.RemainingStyle(s.Remaining, s.WarningWindow)
	}

	var left []string
	if s.Username != "" {
		left = append(left, s.Username)
	}
	if s.Server != "" {
		left = append(left, s.Server)
	}
	if s.State != "" {
		left = append(left, s.State)
	}
	leftText := strings.Join(left, " · ")

	// Padding(0, 1) on the bar takes two columns.
	inner := width - 2
	room := inner - util.StringWidth(right) - 1
	if room < 0 {
		room = 0
	}
	leftText = util.PadRight(util.TruncateWidth(leftText, room), room)

	return theme.StatusBar.Width(width).Render(leftText + " " + rightStyle.Render(right))
}
