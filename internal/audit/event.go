// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxDetailLength is the longest detail string stored.
const MaxDetailLength = 500

// Kind identifies a session lifecycle event.
type Kind string

const (
	KindLogin         Kind = "LOGIN"
	KindLoginFailed   Kind = "LOGIN_FAILED"
	KindRefresh       Kind = "REFRESH"
	KindRefreshFailed Kind = "REFRESH_FAILED"
	KindLogout        Kind = "LOGOUT"
	KindForcedLogout  Kind = "FORCED_LOGOUT"
)

// Success reports whether the kind is a successful outcome.
func (k Kind) Success() bool {
	switch k {
	case KindLoginFailed, KindRefreshFailed, KindForcedLogout:
		return false
	default:
		return true
	}
}

// Event is a single audit record.
type Event struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Kind     Kind      `json:"kind"`
	Username string    `json:"username,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// NewEvent creates an event stamped with a fresh ID and the current time.
func NewEvent(kind Kind, username, detail string) Event {
	return Event{
		ID:       uuid.NewString(),
		Time:     time.Now().UTC(),
		Kind:     kind,
		Username: username,
		Detail:   truncate(detail, MaxDetailLength),
	}
}

// ToLogLine formats the event as a single log line.
func (e Event) ToLogLine() string {
	status := "SUCCESS"
	if !e.Kind.Success() {
		status = "FAILURE"
	}
	return fmt.Sprintf("%s | %-14s | %s | %s | %s",
		e.Time.Local().Format("2006-01-02 15:04:05"),
		e.Kind,
		e.Username,
		status,
		e.Detail,
	)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
