// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/weighdesk-tui/internal/audit"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoSession is returned when an operation needs a live session.
	ErrNoSession = errors.New("no active session")

	// ErrBusy is returned when a login is attempted while another login or
	// an expiration warning is being handled.
	ErrBusy = errors.New("session controller busy")

	// ErrClosed is returned after Run has exited.
	ErrClosed = errors.New("session controller stopped")
)

// Logout reasons shown to the operator.
const (
	ReasonUserDeclined  = "Session closed by user choice."
	ReasonRefreshFailed = "Your session could not be extended. Please sign in again."
	ReasonSignedOut     = "Signed out."
	ReasonUnexpected    = "Session closed after an unexpected error."
)

// Prompt and notification text.
const (
	titleSession       = "Session"
	titleExpiring      = "Session expiring"
	titleRefreshFailed = "Session refresh failed"
	titleClosed        = "Session closed"
	titleUnexpected    = "Unexpected error"
	labelExtend        = "Extend session"
	labelLogout        = "Log out"
	labelOK            = "OK"

	msgUnexpected = "An unexpected error occurred."
)

// DefaultIOTimeout bounds refresh and logout calls made by the controller.
const DefaultIOTimeout = 30 * time.Second

// =============================================================================
// STATE
// =============================================================================

// State is the controller state.
type State int32

const (
	StateLoggedOut State = iota
	StateLoggingIn
	StateActive
	StateWarningShown
	StateRefreshing
	StateLoggingOut
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateLoggingIn:
		return "logging_in"
	case StateActive:
		return "active"
	case StateWarningShown:
		return "warning_shown"
	case StateRefreshing:
		return "refreshing"
	case StateLoggingOut:
		return "logging_out"
	default:
		return "unknown"
	}
}

// handlingFire reports whether a timer fire is being processed.
func (s State) handlingFire() bool {
	return s == StateWarningShown || s == StateRefreshing || s == StateLoggingOut
}

// =============================================================================
// MESSAGES
// =============================================================================

type message interface{ isMessage() }

type loginStartedMsg struct {
	attempt *uint64
	reply   chan error
}

type loginFinishedMsg struct {
	attempt  uint64
	username string
	sess     Session
	err      error
	reply    chan error
}

type startMonitoringMsg struct {
	expiresAt time.Time
	reply     chan error
}

type stopMonitoringMsg struct{ reply chan error }

type firedMsg struct{ fire Fire }

type promptAnsweredMsg struct{ accepted bool }

type refreshFinishedMsg struct {
	sess Session
	err  error
}

type logoutRequestedMsg struct {
	reason string
	reply  chan error
}

type logoutFinishedMsg struct{ reason string }

type releaseFinishedMsg struct{}

type helperPanickedMsg struct {
	op    string
	value any
}

func (loginStartedMsg) isMessage() {}
func (loginFinishedMsg) isMessage() {}
func (startMonitoringMsg) isMessage() {}
func (stopMonitoringMsg) isMessage() {}
func (firedMsg) isMessage() {}
func (promptAnsweredMsg) isMessage() {}
func (refreshFinishedMsg) isMessage() {}
func (logoutRequestedMsg) isMessage() {}
func (logoutFinishedMsg) isMessage() {}
func (releaseFinishedMsg) isMessage() {}
func (helperPanickedMsg) isMessage() {}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller drives the session state machine:
//
//	LoggedOut -> LoggingIn -> Active -> WarningShown -> Refreshing -> Active
//	                                  \-> LoggingOut -> LoggedOut
//
// Every transition is made by the goroutine running Run.
type Controller struct {
	auth      Authenticator
	collab    Collaborators
	store     *Store
	scheduler *Scheduler
	auditor   Auditor
	guard     LoginGuard
	log       *zap.Logger
	fatal     func(error)
	ioTimeout time.Duration

	schedOpts []SchedulerOption

	inbox   chan message
	done    chan struct{}
	running atomic.Bool
	state   atomic.Int32

	userMu sync.RWMutex
	user   string

	// Owned by the Run goroutine.
	loopCtx       context.Context
	armed         uint64
	loginAttempt  uint64
	releasing     bool
	prevState     State
	deferred      []message
	logoutWaiters []chan error
	cancelPrompt  context.CancelFunc
	closeOnce     sync.Once
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) ControllerOption {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithAuditor records lifecycle events.
func WithAuditor(a Auditor) ControllerOption {
	return func(c *Controller) { c.auditor = a }
}

// WithLoginGuard enables lockout after repeated rejected logins.
func WithLoginGuard(g LoginGuard) ControllerOption {
	return func(c *Controller) { c.guard = g }
}

// WithSchedulerOptions configures the expiration scheduler.
func WithSchedulerOptions(opts ...SchedulerOption) ControllerOption {
	return func(c *Controller) { c.schedOpts = append(c.schedOpts, opts...) }
}

// WithFatalHandler replaces the handler used when the login entry point
// cannot be resolved. The default logs and exits the process.
func WithFatalHandler(fn func(error)) ControllerOption {
	return func(c *Controller) {
		if fn != nil {
			c.fatal = fn
		}
	}
}

// WithIOTimeout bounds refresh and logout calls.
func WithIOTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.ioTimeout = d
		}
	}
}

// NewController creates a controller. Call Run to start it.
func NewController(auth Authenticator, collab Collaborators, opts ...ControllerOption) *Controller {
	c := &Controller{
		auth:      auth,
		collab:    collab,
		store:     NewStore(),
		log:       zap.NewNop(),
		ioTimeout: DefaultIOTimeout,
		inbox:     make(chan message, 32),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fatal == nil {
		c.fatal = func(err error) {
			c.log.Fatal("login entry point unavailable", zap.Error(err))
		}
	}
	c.scheduler = NewScheduler(c.onFire, c.schedOpts...)
	c.state.Store(int32(StateLoggedOut))
	return c
}

// Run processes messages until ctx is cancelled. It must be called once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("session controller already running")
	}
	c.loopCtx = ctx
	defer c.closeOnce.Do(func() {
		c.scheduler.Stop()
		close(c.done)
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-c.inbox:
			c.handle(m)
		}
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Session returns the live session, if any.
func (c *Controller) Session() (Session, bool) {
	return c.store.Get()
}

// FireAt returns when the expiration warning is due, or the zero time.
func (c *Controller) FireAt() time.Time {
	return c.scheduler.FireAt()
}

// WarningWindow returns the current warning window.
func (c *Controller) WarningWindow() time.Duration {
	return c.scheduler.WarningWindow()
}

// SetWarningWindow changes the warning window for subsequent arms.
func (c *Controller) SetWarningWindow(d time.Duration) {
	c.scheduler.SetWarningWindow(d)
}

// Username returns the user of the live session.
func (c *Controller) Username() string {
	if _, ok := c.store.Get(); !ok {
		return ""
	}
	return c.currentUser()
}

func (c *Controller) currentUser() string {
	c.userMu.RLock()
	defer c.userMu.RUnlock()
	return c.user
}

func (c *Controller) setUser(u string) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	c.user = u
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Login authenticates and, on success, starts monitoring the new session.
// Errors from the transport are returned unchanged.
func (c *Controller) Login(ctx context.Context, creds Credentials) error {
	if c.guard != nil {
		if err := c.guard.Check(creds.Username); err != nil {
			c.record(audit.KindLoginFailed, creds.Username, err.Error())
			return err
		}
	}

	var attempt uint64
	if err := c.call(ctx, func(reply chan error) message {
		return loginStartedMsg{attempt: &attempt, reply: reply}
	}); err != nil {
		return err
	}

	// Network I/O happens here, outside the loop.
	sess, err := c.auth.Login(ctx, creds)

	if c.guard != nil {
		switch {
		case err == nil:
			c.guard.RecordSuccess(creds.Username)
		case isRejection(err):
			c.guard.RecordFailure(creds.Username)
		}
	}

	commitErr := c.call(context.Background(), func(reply chan error) message {
		return loginFinishedMsg{attempt: attempt, username: creds.Username, sess: sess, err: err, reply: reply}
	})
	if err != nil {
		return err
	}
	return commitErr
}

// Logout signs out. Server errors are ignored; local state is always cleared
// and the login entry point is shown.
func (c *Controller) Logout(ctx context.Context) error {
	return c.call(ctx, func(reply chan error) message {
		return logoutRequestedMsg{reason: ReasonSignedOut, reply: reply}
	})
}

// StartMonitoring arms the expiration warning for expiresAt. A request made
// while a warning is being handled waits until that handling completes.
func (c *Controller) StartMonitoring(expiresAt time.Time) error {
	return c.call(context.Background(), func(reply chan error) message {
		return startMonitoringMsg{expiresAt: expiresAt, reply: reply}
	})
}

// StopMonitoring cancels the pending expiration warning, if any.
func (c *Controller) StopMonitoring() {
	_ = c.call(context.Background(), func(reply chan error) message {
		return stopMonitoringMsg{reply: reply}
	})
}

// call posts a message built around a reply channel and waits for the answer.
func (c *Controller) call(ctx context.Context, build func(chan error) message) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- build(reply):
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// post delivers a message from a helper or timer goroutine.
func (c *Controller) post(m message) {
	select {
	case c.inbox <- m:
	case <-c.done:
	}
}

func (c *Controller) onFire(f Fire) {
	c.post(firedMsg{fire: f})
}

// =============================================================================
// LOOP
// =============================================================================

func (c *Controller) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.log.Debug("session state", zap.Stringer("from", old), zap.Stringer("to", s))
	}
}

func (c *Controller) handle(m message) {
	state := c.State()

	switch m := m.(type) {
	case loginStartedMsg:
		if state == StateLoggingIn || state.handlingFire() {
			m.reply <- ErrBusy
			return
		}
		if c.releasing {
			c.deferred = append(c.deferred, m)
			return
		}
		c.loginAttempt++
		*m.attempt = c.loginAttempt
		c.prevState = state
		c.setState(StateLoggingIn)
		m.reply <- nil

	case loginFinishedMsg:
		if state != StateLoggingIn || m.attempt != c.loginAttempt {
			// A logout overtook the login; release the server session it
			// opened, unless a newer login already owns the jar.
			if m.err == nil {
				c.log.Info("discarding login overtaken by logout",
					zap.String("user", m.username),
					zap.String("token", Fingerprint(m.sess.Token)))
				if state != StateLoggingIn {
					c.releaseOrphan()
				}
			}
			m.reply <- ErrNoSession
			return
		}
		if m.err != nil {
			c.setState(c.prevState)
			c.log.Info("login failed", zap.String("user", m.username), zap.Error(m.err))
			c.record(audit.KindLoginFailed, m.username, m.err.Error())
			m.reply <- nil
			c.drainDeferred()
			return
		}
		c.setUser(m.username)
		c.commit(m.sess)
		c.setState(StateActive)
		c.log.Info("login succeeded",
			zap.String("user", m.username),
			zap.String("token", Fingerprint(m.sess.Token)),
			zap.Time("expires_at", m.sess.ExpiresAt))
		c.record(audit.KindLogin, m.username, "expires "+m.sess.ExpiresAt.UTC().Format(time.RFC3339))
		m.reply <- nil
		c.drainDeferred()

	case startMonitoringMsg:
		if state.handlingFire() {
			c.deferred = append(c.deferred, m)
			return
		}
		if _, ok := c.store.Get(); !ok {
			m.reply <- ErrNoSession
			return
		}
		c.arm(m.expiresAt)
		m.reply <- nil

	case stopMonitoringMsg:
		c.scheduler.Stop()
		c.armed = 0
		m.reply <- nil

	case firedMsg:
		if state == StateLoggingIn {
			// Decide once the login outcome is known.
			c.deferred = append(c.deferred, m)
			return
		}
		c.handleFire(state, m.fire)

	case promptAnsweredMsg:
		if state != StateWarningShown {
			return
		}
		c.dismissPrompt()
		if !m.accepted {
			c.log.Info("session extension declined", zap.String("user", c.currentUser()))
			c.beginLogout(ReasonUserDeclined)
			return
		}
		c.setState(StateRefreshing)
		c.spawn("refresh", true, func(ctx context.Context) {
			sess, err := c.auth.RefreshToken(ctx)
			c.post(refreshFinishedMsg{sess: sess, err: err})
		})

	case refreshFinishedMsg:
		if state != StateRefreshing {
			return
		}
		if m.err != nil {
			c.log.Warn("session refresh failed", zap.String("user", c.currentUser()), zap.Error(m.err))
			c.record(audit.KindRefreshFailed, c.currentUser(), m.err.Error())
			c.notifyError(userMessage(m.err), titleRefreshFailed)
			c.beginLogout(ReasonRefreshFailed)
			return
		}
		c.commit(m.sess)
		c.setState(StateActive)
		c.log.Info("session refreshed",
			zap.String("token", Fingerprint(m.sess.Token)),
			zap.Time("expires_at", m.sess.ExpiresAt))
		c.record(audit.KindRefresh, c.currentUser(), "expires "+m.sess.ExpiresAt.UTC().Format(time.RFC3339))
		if n := c.collab.Notifier; n != nil {
			n.NotifySuccess("Session extended until "+m.sess.ExpiresAt.Local().Format("15:04")+".", titleSession)
		}
		c.drainDeferred()

	case logoutRequestedMsg:
		switch {
		case state == StateLoggedOut:
			m.reply <- nil
		case state == StateLoggingOut:
			c.logoutWaiters = append(c.logoutWaiters, m.reply)
		default:
			c.logoutWaiters = append(c.logoutWaiters, m.reply)
			c.beginLogout(m.reason)
		}

	case logoutFinishedMsg:
		c.finishLogout(m.reason)

	case releaseFinishedMsg:
		c.releasing = false
		c.drainDeferred()

	case helperPanickedMsg:
		c.log.Error("session helper panicked", zap.String("op", m.op), zap.Any("panic", m.value))
		c.notifyError(msgUnexpected, titleUnexpected)
		if state.handlingFire() && state != StateLoggingOut {
			c.beginLogout(ReasonUnexpected)
		}
	}
}

// handleFire starts the extension prompt for the current arm.
func (c *Controller) handleFire(state State, f Fire) {
	if state != StateActive || f.Generation != c.armed {
		c.log.Debug("dropping stale fire", zap.Uint64("generation", f.Generation), zap.Stringer("state", state))
		return
	}
	sess, ok := c.store.Get()
	if !ok {
		return
	}

	c.scheduler.Stop()
	c.armed = 0
	c.setState(StateWarningShown)
	c.log.Info("session expiring", zap.Duration("remaining", sess.Remaining()))

	text := "Your session expires in " + FormatDuration(sess.Remaining()) + ". Extend it?"
	prompter := c.collab.Prompter
	// The operator may take longer than a network call, so no timeout here.
	c.cancelPrompt = c.spawn("prompt", false, func(ctx context.Context) {
		accepted := false
		if prompter != nil {
			accepted = prompter.Confirm(ctx, titleExpiring, text, labelExtend, labelLogout)
		}
		c.post(promptAnsweredMsg{accepted: accepted})
	})
}

// commit stores sess and arms the warning for it.
func (c *Controller) commit(sess Session) {
	c.store.Set(sess)
	c.arm(sess.ExpiresAt)
}

func (c *Controller) arm(expiresAt time.Time) {
	a := c.scheduler.Start(expiresAt)
	c.armed = a.Generation
	c.log.Debug("expiration warning armed", zap.Time("fire_at", a.FireAt), zap.Uint64("generation", a.Generation))
}

// beginLogout moves to LoggingOut and calls the server in the background.
func (c *Controller) beginLogout(reason string) {
	c.setState(StateLoggingOut)
	c.scheduler.Stop()
	c.armed = 0
	c.dismissPrompt()
	c.spawn("logout", true, func(ctx context.Context) {
		defer c.post(logoutFinishedMsg{reason: reason})
		c.auth.Logout(ctx)
	})
}

// releaseOrphan signs out a server session that no local session tracks.
// Logins wait until it completes so the reset jar cannot clobber them.
func (c *Controller) releaseOrphan() {
	c.releasing = true
	c.spawn("logout", true, func(ctx context.Context) {
		defer c.post(releaseFinishedMsg{})
		c.auth.Logout(ctx)
	})
}

// finishLogout clears local state and returns to the login entry point.
func (c *Controller) finishLogout(reason string) {
	if c.State() != StateLoggingOut {
		return
	}
	user := c.currentUser()
	c.scheduler.Stop()
	c.armed = 0
	c.store.Clear()
	c.setUser("")
	c.setState(StateLoggedOut)

	kind := audit.KindForcedLogout
	if reason == ReasonSignedOut {
		kind = audit.KindLogout
	}
	c.log.Info("session closed", zap.String("user", user), zap.String("reason", reason))
	c.record(kind, user, reason)

	if n := c.collab.Notifier; n != nil {
		n.NotifyInfo(reason, titleClosed, labelOK)
	}

	c.showLogin()

	for _, w := range c.logoutWaiters {
		w <- nil
	}
	c.logoutWaiters = nil
	c.drainDeferred()
}

func (c *Controller) showLogin() {
	if c.collab.Entry == nil {
		return
	}
	ep, err := c.collab.Entry.ResolveLoginEntryPoint()
	if err == nil && ep == nil {
		err = errors.New("nil entry point")
	}
	if err != nil {
		c.fatal(fmt.Errorf("resolve login entry point: %w", err))
		return
	}
	ep.Show()
}

// drainDeferred replays requests that arrived while a fire was handled.
func (c *Controller) drainDeferred() {
	pending := c.deferred
	c.deferred = nil
	for _, m := range pending {
		c.handle(m)
	}
}

// spawn runs fn on a helper goroutine. Bounded helpers get the I/O timeout.
// The returned func cancels the helper's context.
func (c *Controller) spawn(op string, bounded bool, fn func(ctx context.Context)) context.CancelFunc {
	parent := c.loopCtx
	if parent == nil {
		parent = context.Background()
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if bounded {
		ctx, cancel = context.WithTimeout(parent, c.ioTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				c.post(helperPanickedMsg{op: op, value: r})
			}
		}()
		fn(ctx)
	}()
	return cancel
}

// dismissPrompt cancels an open extension prompt.
func (c *Controller) dismissPrompt() {
	if c.cancelPrompt != nil {
		c.cancelPrompt()
		c.cancelPrompt = nil
	}
}

func (c *Controller) notifyError(message, title string) {
	if n := c.collab.Notifier; n != nil {
		n.NotifyError(message, title)
	}
}

func (c *Controller) record(kind audit.Kind, user, detail string) {
	if c.auditor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.auditor.Record(ctx, audit.NewEvent(kind, user, detail)); err != nil {
		c.log.Warn("audit record failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func isRejection(err error) bool {
	var r rejecter
	return errors.As(err, &r) && r.Rejected()
}

// userMessage returns operator-facing text for err; raw network errors are
// never shown as-is.
func userMessage(err error) string {
	var um userMessager
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The server did not respond in time."
	}
	return "The session could not be extended."
}

// Fingerprint returns a short, non-reversible identifier for a token so that
// log lines can be correlated without exposing it.
func Fingerprint(token string) string {
	if token == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:4])
}
