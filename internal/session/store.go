// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is an authenticated session issued by the server.
type Session struct {
	// Token is the opaque session token (cookie value or body token).
	Token string

	// ExpiresAt is when the server will stop honoring Token (UTC).
	ExpiresAt time.Time
}

// IsZero reports whether s is the absent session.
func (s Session) IsZero() bool {
	return s.Token == ""
}

// IsExpired returns true once ExpiresAt has passed.
func (s Session) IsExpired() bool {
	return !time.Now().Before(s.ExpiresAt)
}

// Remaining returns the time left before expiry, never negative.
func (s Session) Remaining() time.Duration {
	remaining := time.Until(s.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// String never includes the token.
func (s Session) String() string {
	if s.IsZero() {
		return "session{none}"
	}
	return fmt.Sprintf("session{expires=%s}", s.ExpiresAt.Format(time.RFC3339))
}

// Credentials is a login request. It is never persisted or logged.
type Credentials struct {
	Username string
	Password string
}

// String redacts the password.
func (c Credentials) String() string {
	return fmt.Sprintf("credentials{user=%q, password=[REDACTED]}", c.Username)
}

// GoString redacts the password for %#v as well.
func (c Credentials) GoString() string {
	return c.String()
}

// =============================================================================
// STORE
// =============================================================================

// Store holds the single live session. It has no persistence.
type Store struct {
	mu      sync.RWMutex
	current Session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current session and whether one is present.
func (s *Store) Get() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, !s.current.IsZero()
}

// Set replaces the current session. ExpiresAt is normalized to UTC.
func (s *Store) Set(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	s.current = sess
}

// Clear removes the current session.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Session{}
}
