// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"sync"
	"time"
)

// =============================================================================
// SCHEDULER CONSTANTS
// =============================================================================

const (
	// DefaultWarningWindow is how long before expiry the warning fires.
	DefaultWarningWindow = 2 * time.Minute

	// DefaultMinFireDelay is used when the warning time has already passed.
	// A zero delay could fire while Start is still running.
	DefaultMinFireDelay = time.Second
)

// SchedulerState is the state of the expiration scheduler.
type SchedulerState int

const (
	// SchedulerIdle means no timer is pending.
	SchedulerIdle SchedulerState = iota
	// SchedulerArmed means one timer is counting down.
	SchedulerArmed
	// SchedulerFired means the callback is being dispatched.
	SchedulerFired
)

// String returns the state name.
func (s SchedulerState) String() string {
	switch s {
	case SchedulerIdle:
		return "idle"
	case SchedulerArmed:
		return "armed"
	case SchedulerFired:
		return "fired"
	default:
		return "unknown"
	}
}

// Fire is delivered to the scheduler callback.
type Fire struct {
	// Generation identifies the Start call that armed this timer.
	Generation uint64
	// At is when the timer actually fired.
	At time.Time
}

// Arm describes a timer armed by Start.
type Arm struct {
	Generation uint64
	FireAt     time.Time
}

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler is a one-shot timer that fires a warning window before a session
// expires. At most one timer exists at a time; Start replaces it.
type Scheduler struct {
	mu sync.Mutex

	warningWindow time.Duration
	minDelay      time.Duration
	now           func() time.Time
	onFire        func(Fire)

	timer      *time.Timer
	state      SchedulerState
	generation uint64
	fireAt     time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWarningWindow sets the warning window. Negative values are ignored.
func WithWarningWindow(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d >= 0 {
			s.warningWindow = d
		}
	}
}

// WithMinFireDelay sets the minimal delay used when the warning time has
// already passed. Must be positive.
func WithMinFireDelay(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.minDelay = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates an idle scheduler that calls onFire from the timer
// goroutine.
func NewScheduler(onFire func(Fire), opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		warningWindow: DefaultWarningWindow,
		minDelay:      DefaultMinFireDelay,
		now:           time.Now,
		onFire:        onFire,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms the timer for expiresAt minus the warning window, cancelling
// any pending timer first. When that moment is not in the future the timer
// fires after the minimal delay instead.
func (s *Scheduler) Start(expiresAt time.Time) Arm {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	now := s.now()
	fireAt := expiresAt.Add(-s.warningWindow)
	delay := fireAt.Sub(now)
	if delay <= 0 {
		delay = s.minDelay
		fireAt = now.Add(delay)
	}

	s.generation++
	gen := s.generation
	s.fireAt = fireAt
	s.state = SchedulerArmed
	s.timer = time.AfterFunc(delay, func() { s.fire(gen) })

	return Arm{Generation: gen, FireAt: fireAt}
}

// Stop cancels a pending timer. It returns true if a timer was armed.
// Calling Stop while idle is a no-op.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Scheduler) stopLocked() bool {
	if s.state != SchedulerArmed {
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// Bumping the generation makes a callback that already lost the race
	// to timer.Stop a no-op.
	s.generation++
	s.state = SchedulerIdle
	s.fireAt = time.Time{}
	return true
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.state != SchedulerArmed {
		s.mu.Unlock()
		return
	}
	s.state = SchedulerFired
	s.timer = nil
	at := s.now()
	onFire := s.onFire
	s.mu.Unlock()

	// Callback runs outside the lock so it may call Start or Stop.
	if onFire != nil {
		onFire(Fire{Generation: gen, At: at})
	}

	s.mu.Lock()
	if s.state == SchedulerFired && s.generation == gen {
		s.state = SchedulerIdle
		s.fireAt = time.Time{}
	}
	s.mu.Unlock()
}

// State returns the current scheduler state.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FireAt returns when the armed timer will fire, or the zero time.
func (s *Scheduler) FireAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fireAt
}

// Generation returns the generation of the most recent Start or Stop.
func (s *Scheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// WarningWindow returns the configured warning window.
func (s *Scheduler) WarningWindow() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warningWindow
}

// SetWarningWindow changes the warning window. It takes effect on the next
// Start; an armed timer keeps its fire time.
func (s *Scheduler) SetWarningWindow(d time.Duration) {
	if d < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warningWindow = d
}
