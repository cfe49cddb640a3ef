// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security provides client-side login protections.
//
// This file implements the login lockout: after a number of consecutive
// rejected logins for one username, further attempts are refused locally
// for a cool-down period without contacting the server.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// LOCKOUT CONSTANTS
// =============================================================================

const (
	// DefaultMaxAttempts is the number of rejected logins before lockout.
	DefaultMaxAttempts = 5

	// DefaultLockoutDuration is how long a lockout lasts.
	DefaultLockoutDuration = 15 * time.Minute
)

// ErrLocked is returned when a username is locked out.
var ErrLocked = errors.New("account locked: too many failed attempts")

// LockedError reports a lockout and when it ends. It matches ErrLocked.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

// Error implements the error interface.
func (e *LockedError) Error() string {
	return fmt.Sprintf("%s (retry in %s)", ErrLocked.Error(), e.Remaining.Round(time.Second))
}

// Is matches ErrLocked.
func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// UserMessage returns operator-facing text.
func (e *LockedError) UserMessage() string {
	mins := int(e.Remaining.Round(time.Minute).Minutes())
	if mins < 1 {
		return "Too many failed sign-in attempts. Try again in a moment."
	}
	if mins == 1 {
		return "Too many failed sign-in attempts. Try again in 1 minute."
	}
	return fmt.Sprintf("Too many failed sign-in attempts. Try again in %d minutes.", mins)
}

// =============================================================================
// ATTEMPT RECORD
// =============================================================================

// AttemptRecord tracks rejected logins for one username.
type AttemptRecord struct {
	// Count is the number of consecutive rejected attempts.
	Count int

	// FirstAttempt is when the current series of failures began.
	FirstAttempt time.Time

	// LastAttempt is the most recent rejected attempt.
	LastAttempt time.Time

	// LockedUntil is when the lockout ends. Zero means not locked.
	LockedUntil time.Time

	// LockoutCount is how many times this username has been locked.
	LockoutCount int
}

// lockedAt reports whether the record is locked at now.
func (a *AttemptRecord) lockedAt(now time.Time) bool {
	return !a.LockedUntil.IsZero() && now.Before(a.LockedUntil)
}

// =============================================================================
// LOCKOUT MANAGER
// =============================================================================

// LockoutManager refuses logins for usernames that failed too often.
// It keeps state in memory only and is safe for concurrent use.
// It implements session.LoginGuard.
type LockoutManager struct {
	mu sync.Mutex

	attempts        map[string]*AttemptRecord
	maxAttempts     int
	lockoutDuration time.Duration
	enabled         bool
	now             func() time.Time
	log             *zap.Logger
}

// LockoutManagerOption is a functional option for configuring LockoutManager.
type LockoutManagerOption func(*LockoutManager)

// WithMaxAttempts sets the number of rejected logins before lockout.
// Zero disables the lockout.
func WithMaxAttempts(max int) LockoutManagerOption {
	return func(l *LockoutManager) {
		if max >= 0 {
			l.maxAttempts = max
		}
	}
}

// WithLockoutDuration sets the lockout duration.
func WithLockoutDuration(d time.Duration) LockoutManagerOption {
	return func(l *LockoutManager) {
		if d > 0 {
			l.lockoutDuration = d
		}
	}
}

// WithLockoutClock replaces time.Now, for tests.
func WithLockoutClock(now func() time.Time) LockoutManagerOption {
	return func(l *LockoutManager) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLockoutLogger sets the logger for lockout events.
func WithLockoutLogger(log *zap.Logger) LockoutManagerOption {
	return func(l *LockoutManager) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLockoutManager creates a new LockoutManager with the given options.
func NewLockoutManager(opts ...LockoutManagerOption) *LockoutManager {
	lm := &LockoutManager{
		attempts:        make(map[string]*AttemptRecord),
		maxAttempts:     DefaultMaxAttempts,
		lockoutDuration: DefaultLockoutDuration,
		now:             time.Now,
		log:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(lm)
	}
	lm.enabled = lm.maxAttempts > 0
	return lm
}

// =============================================================================
// CORE OPERATIONS
// =============================================================================

// Check returns a *LockedError if username is locked out.
func (l *LockoutManager) Check(username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return nil
	}
	id := NormalizeUsername(username)
	record, ok := l.attempts[id]
	if !ok {
		return nil
	}

	now := l.now()
	if record.lockedAt(now) {
		l.log.Warn("login blocked by lockout",
			zap.String("user", maskIdentifier(id)),
			zap.Time("until", record.LockedUntil))
		return &LockedError{Until: record.LockedUntil, Remaining: record.LockedUntil.Sub(now)}
	}
	if !record.LockedUntil.IsZero() {
		// Lockout expired: start a fresh series.
		record.Count = 0
		record.FirstAttempt = time.Time{}
		record.LockedUntil = time.Time{}
	}
	return nil
}

// RecordFailure counts a rejected login and locks the username once the
// threshold is reached.
func (l *LockoutManager) RecordFailure(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}
	id := NormalizeUsername(username)
	now := l.now()

	record, ok := l.attempts[id]
	if !ok {
		record = &AttemptRecord{}
		l.attempts[id] = record
	}
	if record.FirstAttempt.IsZero() {
		record.FirstAttempt = now
	}
	record.LastAttempt = now
	record.Count++

	l.log.Info("login rejected",
		zap.String("user", maskIdentifier(id)),
		zap.Int("attempt", record.Count),
		zap.Int("max_attempts", l.maxAttempts))

	if record.Count >= l.maxAttempts {
		record.LockedUntil = now.Add(l.lockoutDuration)
		record.LockoutCount++
		l.log.Warn("login locked out",
			zap.String("user", maskIdentifier(id)),
			zap.Duration("duration", l.lockoutDuration),
			zap.Int("lockout_number", record.LockoutCount))
	}
}

// RecordSuccess clears the failure series for username.
func (l *LockoutManager) RecordSuccess(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if record, ok := l.attempts[NormalizeUsername(username)]; ok {
		record.Count = 0
		record.FirstAttempt = time.Time{}
		record.LockedUntil = time.Time{}
	}
}

// Status returns a copy of the record for username, or nil.
func (l *LockoutManager) Status(username string) *AttemptRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.attempts[NormalizeUsername(username)]
	if !ok {
		return nil
	}
	cp := *record
	return &cp
}

// Unlock lifts a lockout early.
func (l *LockoutManager) Unlock(username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := NormalizeUsername(username)
	record, ok := l.attempts[id]
	if !ok || !record.lockedAt(l.now()) {
		return fmt.Errorf("identifier not locked: %s", maskIdentifier(id))
	}
	record.Count = 0
	record.FirstAttempt = time.Time{}
	record.LockedUntil = time.Time{}
	l.log.Info("lockout lifted", zap.String("user", maskIdentifier(id)))
	return nil
}

// Locked returns the masked identifiers currently locked, sorted.
func (l *LockoutManager) Locked() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var out []string
	for id, record := range l.attempts {
		if record.lockedAt(now) {
			out = append(out, maskIdentifier(id))
		}
	}
	sort.Strings(out)
	return out
}

// Cleanup drops records with no failures and no active lockout. It returns
// the number removed.
func (l *LockoutManager) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, record := range l.attempts {
		if record.lockedAt(now) {
			continue
		}
		if record.Count == 0 || !record.LockedUntil.IsZero() {
			delete(l.attempts, id)
			removed++
		}
	}
	return removed
}

// IsEnabled reports whether lockout tracking is active.
func (l *LockoutManager) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// =============================================================================
// HELPERS
// =============================================================================

// NormalizeUsername folds case and compatibility forms so that visually
// equal usernames share one attempt record.
func NormalizeUsername(username string) string {
	s := strings.TrimSpace(username)
	if normalized, _, err := transform.String(norm.NFKC, s); err == nil {
		s = normalized
	}
	// A Caser is stateful, so each call gets its own.
	return cases.Fold().String(s)
}

// maskIdentifier masks an identifier for logging using SHA256 hash.
func maskIdentifier(id string) string {
	hash := sha256.Sum256([]byte(id))
	return "hash:" + hex.EncodeToString(hash[:])[:12]
}
