// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/weighdesk-tui/internal/audit"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeAuth struct {
	login   func(Credentials) (Session, error)
	refresh func() (Session, error)
	logout  func()

	logins    atomic.Int32
	refreshes atomic.Int32
	logouts   atomic.Int32
}

func (a *fakeAuth) Login(_ context.Context, creds Credentials) (Session, error) {
	a.logins.Add(1)
	if a.login == nil {
		return Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	return a.login(creds)
}

func (a *fakeAuth) RefreshToken(context.Context) (Session, error) {
	a.refreshes.Add(1)
	if a.refresh == nil {
		return Session{}, errors.New("no refresh configured")
	}
	return a.refresh()
}

func (a *fakeAuth) Logout(context.Context) {
	a.logouts.Add(1)
	if a.logout != nil {
		a.logout()
	}
}

type fakePrompter struct {
	asked     chan string
	answers   chan bool
	cancelled atomic.Int32
}

func newFakePrompter() *fakePrompter {
	return &fakePrompter{asked: make(chan string, 4), answers: make(chan bool, 4)}
}

func (p *fakePrompter) Confirm(ctx context.Context, title, message, primary, secondary string) bool {
	p.asked <- message
	select {
	case a := <-p.answers:
		return a
	case <-ctx.Done():
		p.cancelled.Add(1)
		return false
	}
}

func (p *fakePrompter) waitAsked(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-p.asked:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("prompt was never shown")
		return ""
	}
}

type note struct {
	kind, message, title string
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *fakeNotifier) NotifyError(message, title string) {
	n.add(note{"error", message, title})
}

func (n *fakeNotifier) NotifySuccess(message, title string) {
	n.add(note{"success", message, title})
}

func (n *fakeNotifier) NotifyInfo(message, title, _ string) {
	n.add(note{"info", message, title})
}

func (n *fakeNotifier) add(nt note) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, nt)
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, nt := range n.notes {
		out = append(out, nt.kind)
	}
	return out
}

func (n *fakeNotifier) last() note {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notes) == 0 {
		return note{}
	}
	return n.notes[len(n.notes)-1]
}

type fakeEntry struct{ shows atomic.Int32 }

func (e *fakeEntry) Show() { e.shows.Add(1) }

type fakeResolver struct {
	entry    fakeEntry
	resolves atomic.Int32
	err      error
}

func (r *fakeResolver) ResolveLoginEntryPoint() (EntryPoint, error) {
	r.resolves.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &r.entry, nil
}

type fakeAuditor struct {
	mu    sync.Mutex
	kinds []audit.Kind
}

func (a *fakeAuditor) Record(_ context.Context, ev audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, ev.Kind)
	return nil
}

func (a *fakeAuditor) recorded() []audit.Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Kind(nil), a.kinds...)
}

type fakeGuard struct {
	mu        sync.Mutex
	failures  int
	successes int
	locked    bool
}

var errLockedOut = errors.New("locked out")

func (g *fakeGuard) Check(string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locked {
		return errLockedOut
	}
	return nil
}

func (g *fakeGuard) RecordFailure(string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
}

func (g *fakeGuard) RecordSuccess(string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successes++
}

// rejectedErr mimics a server refusing the credentials.
type rejectedErr struct{}

func (rejectedErr) Error() string       { return "service error [unauthorized]" }
func (rejectedErr) Rejected() bool      { return true }
func (rejectedErr) UserMessage() string { return "Invalid credentials." }

// =============================================================================
// HARNESS
// =============================================================================

type harness struct {
	ctrl     *Controller
	auth     *fakeAuth
	prompter *fakePrompter
	notifier *fakeNotifier
	resolver *fakeResolver
	auditor  *fakeAuditor
	fatals   chan error
}

func newHarness(t *testing.T, auth *fakeAuth, opts ...ControllerOption) *harness {
	t.Helper()
	h := &harness{
		auth:     auth,
		prompter: newFakePrompter(),
		notifier: &fakeNotifier{},
		resolver: &fakeResolver{},
		auditor:  &fakeAuditor{},
		fatals:   make(chan error, 4),
	}
	base := []ControllerOption{
		WithAuditor(h.auditor),
		WithFatalHandler(func(err error) { h.fatals <- err }),
		WithIOTimeout(time.Second),
		WithSchedulerOptions(WithMinFireDelay(10 * time.Millisecond)),
	}
	h.ctrl = NewController(auth, Collaborators{
		Prompter: h.prompter,
		Notifier: h.notifier,
		Entry:    h.resolver,
	}, append(base, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// expiringSoon returns a login func whose session is already inside the
// warning window, so the warning fires after the minimal delay.
func expiringSoon() func(Credentials) (Session, error) {
	return func(Credentials) (Session, error) {
		return Session{Token: "tok-1", ExpiresAt: time.Now().Add(30 * time.Second)}, nil
	}
}

// waitClosed waits until a logout has fully completed.
func (h *harness) waitClosed(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return h.resolver.resolves.Load() > 0 },
		2*time.Second, 5*time.Millisecond, "login entry point was never resolved")
	require.Equal(t, StateLoggedOut, h.ctrl.State())
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ctrl.State() == want },
		2*time.Second, 5*time.Millisecond, "state never became %s (is %s)", want, h.ctrl.State())
}

var creds = Credentials{Username: "ops", Password: "secret"}

// =============================================================================
// LOGIN
// =============================================================================

func TestController_LoginArmsWarning(t *testing.T) {
	expires := time.Now().Add(10 * time.Minute).UTC()
	h := newHarness(t, &fakeAuth{login: func(Credentials) (Session, error) {
		return Session{Token: "tok", ExpiresAt: expires}, nil
	}})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	require.Equal(t, StateActive, h.ctrl.State())

	sess, ok := h.ctrl.Session()
	require.True(t, ok)
	require.Equal(t, "tok", sess.Token)
	require.Equal(t, "ops", h.ctrl.Username())
	require.Equal(t, expires.Add(-DefaultWarningWindow), h.ctrl.FireAt())
	require.Equal(t, []audit.Kind{audit.KindLogin}, h.auditor.recorded())

	st := h.ctrl.Status()
	require.True(t, st.Authenticated)
	require.Equal(t, Fingerprint("tok"), st.Fingerprint)
}

func TestController_LoginFailureLeavesStateUnchanged(t *testing.T) {
	guard := &fakeGuard{}
	h := newHarness(t, &fakeAuth{login: func(Credentials) (Session, error) {
		return Session{}, rejectedErr{}
	}}, WithLoginGuard(guard))

	err := h.ctrl.Login(context.Background(), creds)
	require.ErrorIs(t, err, rejectedErr{})
	require.Equal(t, StateLoggedOut, h.ctrl.State())
	_, ok := h.ctrl.Session()
	require.False(t, ok)
	require.Equal(t, 1, guard.failures)
	require.Equal(t, []audit.Kind{audit.KindLoginFailed}, h.auditor.recorded())
}

func TestController_LoginNetworkFailureIsNotCountedAsRejection(t *testing.T) {
	guard := &fakeGuard{}
	h := newHarness(t, &fakeAuth{login: func(Credentials) (Session, error) {
		return Session{}, errors.New("connection refused")
	}}, WithLoginGuard(guard))

	require.Error(t, h.ctrl.Login(context.Background(), creds))
	require.Equal(t, 0, guard.failures)
}

func TestController_LoginLockedOut(t *testing.T) {
	auth := &fakeAuth{}
	guard := &fakeGuard{locked: true}
	h := newHarness(t, auth, WithLoginGuard(guard))

	err := h.ctrl.Login(context.Background(), creds)
	require.ErrorIs(t, err, errLockedOut)
	require.Equal(t, int32(0), auth.logins.Load(), "locked out logins must not reach the server")
}

func TestController_LoginBusyWhileWarningShown(t *testing.T) {
	h := newHarness(t, &fakeAuth{login: expiringSoon()})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	h.prompter.waitAsked(t)
	h.waitState(t, StateWarningShown)

	require.ErrorIs(t, h.ctrl.Login(context.Background(), creds), ErrBusy)
}

// =============================================================================
// EXPIRATION WARNING
// =============================================================================

func TestController_DeclineLogsOut(t *testing.T) {
	h := newHarness(t, &fakeAuth{login: expiringSoon()})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	msg := h.prompter.waitAsked(t)
	require.Contains(t, msg, "Your session expires in")

	h.prompter.answers <- false
	h.waitClosed(t)

	require.Equal(t, int32(1), h.auth.logouts.Load())
	require.Equal(t, int32(0), h.auth.refreshes.Load())
	_, ok := h.ctrl.Session()
	require.False(t, ok)
	require.True(t, h.ctrl.FireAt().IsZero())
	require.Equal(t, int32(1), h.resolver.resolves.Load())
	require.Equal(t, int32(1), h.resolver.entry.shows.Load())
	require.Equal(t, note{"info", ReasonUserDeclined, titleClosed}, h.notifier.last())
	require.Contains(t, h.auditor.recorded(), audit.KindForcedLogout)
}

func TestController_AcceptRefreshesAndRearms(t *testing.T) {
	renewed := time.Now().Add(time.Hour).UTC()
	h := newHarness(t, &fakeAuth{
		login: expiringSoon(),
		refresh: func() (Session, error) {
			return Session{Token: "tok-2", ExpiresAt: renewed}, nil
		},
	})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	h.prompter.waitAsked(t)
	h.prompter.answers <- true

	require.Eventually(t, func() bool { return h.notifier.last().kind == "success" },
		2*time.Second, 5*time.Millisecond)
	require.Equal(t, StateActive, h.ctrl.State())
	sess, _ := h.ctrl.Session()
	require.Equal(t, "tok-2", sess.Token)

	require.Equal(t, renewed.Add(-DefaultWarningWindow), h.ctrl.FireAt())
	require.Equal(t, int32(0), h.auth.logouts.Load())
	require.Equal(t, int32(0), h.resolver.resolves.Load())
	require.Equal(t, []audit.Kind{audit.KindLogin, audit.KindRefresh}, h.auditor.recorded())
}

func TestController_RefreshFailureForcesLogout(t *testing.T) {
	h := newHarness(t, &fakeAuth{
		login: expiringSoon(),
		refresh: func() (Session, error) {
			return Session{}, rejectedErr{}
		},
	})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	h.prompter.waitAsked(t)
	h.prompter.answers <- true
	h.waitClosed(t)

	require.Equal(t, int32(1), h.auth.refreshes.Load())
	require.Equal(t, int32(1), h.auth.logouts.Load())
	require.Equal(t, int32(1), h.resolver.resolves.Load())
	require.Equal(t, []string{"error", "info"}, h.notifier.kinds())
	require.Equal(t, ReasonRefreshFailed, h.notifier.last().message)
	require.Equal(t, []audit.Kind{audit.KindLogin, audit.KindRefreshFailed, audit.KindForcedLogout}, h.auditor.recorded())
}

func TestController_RefreshPanicForcesLogout(t *testing.T) {
	h := newHarness(t, &fakeAuth{
		login: expiringSoon(),
		refresh: func() (Session, error) {
			panic("refresh exploded")
		},
	})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	h.prompter.waitAsked(t)
	h.prompter.answers <- true
	h.waitClosed(t)

	require.Equal(t, int32(1), h.auth.logouts.Load())
	require.Equal(t, int32(1), h.resolver.resolves.Load())
	_, ok := h.ctrl.Session()
	require.False(t, ok)

	require.Equal(t, []string{"error", "info"}, h.notifier.kinds())
	h.notifier.mu.Lock()
	shown := h.notifier.notes[0]
	h.notifier.mu.Unlock()
	require.Equal(t, msgUnexpected, shown.message)
	require.NotContains(t, shown.message, "exploded")
}

// blockingLogin returns a login func that answers the first call at once
// and holds every later call until release is closed.
func blockingLogin(first Session, later Session, laterErr error, started, release chan struct{}) func(Credentials) (Session, error) {
	var calls atomic.Int32
	return func(Credentials) (Session, error) {
		if calls.Add(1) == 1 && first.Token != "" {
			return first, nil
		}
		close(started)
		<-release
		return later, laterErr
	}
}

func TestController_FireDuringLoginDroppedWhenLoginSucceeds(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	renewed := time.Now().Add(2 * time.Hour).UTC()
	h := newHarness(t, &fakeAuth{login: blockingLogin(
		Session{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)},
		Session{Token: "tok-2", ExpiresAt: renewed}, nil,
		started, release,
	)})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	gen := h.ctrl.scheduler.Generation()

	result := make(chan error, 1)
	go func() { result <- h.ctrl.Login(context.Background(), creds) }()
	<-started
	h.waitState(t, StateLoggingIn)

	h.ctrl.post(firedMsg{fire: Fire{Generation: gen, At: time.Now()}})
	close(release)
	require.NoError(t, <-result)

	require.Never(t, func() bool { return len(h.prompter.asked) > 0 },
		100*time.Millisecond, 10*time.Millisecond)
	require.Equal(t, StateActive, h.ctrl.State())
	require.Equal(t, renewed.Add(-DefaultWarningWindow), h.ctrl.FireAt())
}

func TestController_FireDuringLoginHandledWhenLoginFails(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	h := newHarness(t, &fakeAuth{login: blockingLogin(
		Session{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)},
		Session{}, rejectedErr{},
		started, release,
	)})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	gen := h.ctrl.scheduler.Generation()

	result := make(chan error, 1)
	go func() { result <- h.ctrl.Login(context.Background(), creds) }()
	<-started
	h.waitState(t, StateLoggingIn)

	h.ctrl.post(firedMsg{fire: Fire{Generation: gen, At: time.Now()}})
	close(release)
	require.ErrorIs(t, <-result, rejectedErr{})

	msg := h.prompter.waitAsked(t)
	require.Contains(t, msg, "Your session expires in")
	h.waitState(t, StateWarningShown)
}

func TestController_StaleFireIsDropped(t *testing.T) {
	h := newHarness(t, &fakeAuth{})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	h.ctrl.post(firedMsg{fire: Fire{Generation: 9999, At: time.Now()}})

	require.Never(t, func() bool { return len(h.prompter.asked) > 0 },
		100*time.Millisecond, 10*time.Millisecond)
	require.Equal(t, StateActive, h.ctrl.State())
}

func TestController_StartMonitoringDeferredDuringWarning(t *testing.T) {
	renewed := time.Now().Add(time.Hour).UTC()
	h := newHarness(t, &fakeAuth{
		login: expiringSoon(),
		refresh: func() (Session, error) {
			return Session{Token: "tok-2", ExpiresAt: renewed}, nil
		},
	})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	h.prompter.waitAsked(t)

	later := time.Now().Add(3 * time.Hour).UTC()
	result := make(chan error, 1)
	go func() { result <- h.ctrl.StartMonitoring(later) }()

	select {
	case <-result:
		t.Fatal("StartMonitoring completed while the warning was open")
	case <-time.After(50 * time.Millisecond):
	}

	h.prompter.answers <- true
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred StartMonitoring never completed")
	}
	require.Equal(t, later.Add(-DefaultWarningWindow), h.ctrl.FireAt())
}

func TestController_StartMonitoringWithoutSession(t *testing.T) {
	h := newHarness(t, &fakeAuth{})
	require.ErrorIs(t, h.ctrl.StartMonitoring(time.Now().Add(time.Hour)), ErrNoSession)
}

func TestController_StopMonitoring(t *testing.T) {
	h := newHarness(t, &fakeAuth{})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	require.False(t, h.ctrl.FireAt().IsZero())
	h.ctrl.StopMonitoring()
	require.True(t, h.ctrl.FireAt().IsZero())
	h.ctrl.StopMonitoring()
}

// =============================================================================
// LOGOUT
// =============================================================================

func TestController_Logout(t *testing.T) {
	h := newHarness(t, &fakeAuth{})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	require.NoError(t, h.ctrl.Logout(context.Background()))

	require.Equal(t, StateLoggedOut, h.ctrl.State())
	require.Equal(t, int32(1), h.auth.logouts.Load())
	require.Equal(t, "", h.ctrl.Username())
	require.Equal(t, int32(1), h.resolver.entry.shows.Load())
	require.Equal(t, []audit.Kind{audit.KindLogin, audit.KindLogout}, h.auditor.recorded())

	require.ErrorIs(t, h.ctrl.StartMonitoring(time.Now().Add(time.Hour)), ErrNoSession)
	require.Equal(t, StateLoggedOut, h.ctrl.State())
	require.True(t, h.ctrl.FireAt().IsZero())
}

func TestController_LogoutDuringLoginReleasesServerSession(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	h := newHarness(t, &fakeAuth{login: blockingLogin(
		Session{}, Session{Token: "late", ExpiresAt: time.Now().Add(time.Hour)}, nil,
		started, release,
	)})

	result := make(chan error, 1)
	go func() { result <- h.ctrl.Login(context.Background(), creds) }()
	<-started
	h.waitState(t, StateLoggingIn)

	require.NoError(t, h.ctrl.Logout(context.Background()))
	h.waitClosed(t)
	require.Equal(t, int32(1), h.auth.logouts.Load())

	close(release)
	require.ErrorIs(t, <-result, ErrNoSession)

	require.Eventually(t, func() bool { return h.auth.logouts.Load() == 2 },
		2*time.Second, 5*time.Millisecond, "late login was never signed out")
	require.Equal(t, StateLoggedOut, h.ctrl.State())
	_, ok := h.ctrl.Session()
	require.False(t, ok)
	require.True(t, h.ctrl.FireAt().IsZero())
	require.Equal(t, int32(1), h.resolver.resolves.Load())
}

func TestController_LoginWaitsForOrphanRelease(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	releaseLogout := make(chan struct{})
	auth := &fakeAuth{}
	auth.login = func(Credentials) (Session, error) {
		if auth.logins.Load() == 1 {
			close(started)
			<-release
		}
		return Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	auth.logout = func() {
		if auth.logouts.Load() == 2 {
			<-releaseLogout
		}
	}
	h := newHarness(t, auth)

	first := make(chan error, 1)
	go func() { first <- h.ctrl.Login(context.Background(), creds) }()
	<-started
	h.waitState(t, StateLoggingIn)
	require.NoError(t, h.ctrl.Logout(context.Background()))
	close(release)
	require.ErrorIs(t, <-first, ErrNoSession)

	// The orphan release is still running; a new login must wait for it.
	require.Eventually(t, func() bool { return auth.logouts.Load() == 2 },
		2*time.Second, 5*time.Millisecond)
	second := make(chan error, 1)
	go func() { second <- h.ctrl.Login(context.Background(), creds) }()
	select {
	case <-second:
		t.Fatal("login completed while the orphan release was running")
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, int32(1), auth.logins.Load())

	close(releaseLogout)
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred login never completed")
	}
	require.Equal(t, StateActive, h.ctrl.State())
}

func TestController_LogoutWhileLoggedOutIsNoop(t *testing.T) {
	h := newHarness(t, &fakeAuth{})

	require.NoError(t, h.ctrl.Logout(context.Background()))
	require.Equal(t, int32(0), h.auth.logouts.Load())
	require.Equal(t, int32(0), h.resolver.resolves.Load())
}

func TestController_LogoutDismissesOpenPrompt(t *testing.T) {
	h := newHarness(t, &fakeAuth{login: expiringSoon()})

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	h.prompter.waitAsked(t)

	require.NoError(t, h.ctrl.Logout(context.Background()))
	require.Eventually(t, func() bool { return h.prompter.cancelled.Load() == 1 },
		time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), h.auth.logouts.Load())
	require.Equal(t, int32(0), h.auth.refreshes.Load())
}

func TestController_FatalWhenEntryPointUnavailable(t *testing.T) {
	h := newHarness(t, &fakeAuth{login: expiringSoon()})
	h.resolver.err = errors.New("no window")

	require.NoError(t, h.ctrl.Login(context.Background(), creds))
	h.prompter.waitAsked(t)
	h.prompter.answers <- false

	select {
	case err := <-h.fatals:
		require.ErrorContains(t, err, "no window")
	case <-time.After(2 * time.Second):
		t.Fatal("fatal handler was not called")
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestController_RunTwice(t *testing.T) {
	h := newHarness(t, &fakeAuth{})
	require.Eventually(t, func() bool { return h.ctrl.running.Load() }, time.Second, time.Millisecond)
	require.Error(t, h.ctrl.Run(context.Background()))
}

func TestController_ClosedAfterRunExits(t *testing.T) {
	c := NewController(&fakeAuth{}, Collaborators{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	require.ErrorIs(t, c.Login(context.Background(), creds), ErrClosed)
	require.ErrorIs(t, c.Logout(context.Background()), ErrClosed)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "logged_out", StateLoggedOut.String())
	require.Equal(t, "warning_shown", StateWarningShown.String())
	require.Equal(t, "unknown", State(42).String())
}
