// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"time"

	"github.com/jeranaias/weighdesk-tui/internal/util"
)

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status is a point-in-time snapshot for display.
type Status struct {
	State         State
	Username      string
	Authenticated bool
	ExpiresAt     time.Time
	Remaining     time.Duration
	WarningAt     time.Time
	Fingerprint   string
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	sess, ok := c.store.Get()
	st := Status{
		State:         c.State(),
		Authenticated: ok,
		WarningAt:     c.scheduler.FireAt(),
	}
	if ok {
		st.Username = c.currentUser()
		st.ExpiresAt = sess.ExpiresAt
		st.Remaining = sess.Remaining()
		st.Fingerprint = Fingerprint(sess.Token)
	}
	return st
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		secs := int(d.Seconds())
		return util.IntToString(secs) + "s"
	}
	if d >= time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins == 0 {
			return util.IntToString(hours) + "h"
		}
		return util.IntToString(hours) + "h " + util.IntToString(mins) + "m"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return util.IntToString(mins) + "m"
	}
	return util.IntToString(mins) + "m " + util.IntToString(secs) + "s"
}
