// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app is the weighdesk terminal program: a login screen, a home
// screen with the session countdown, and the extension prompt.
package app

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/jeranaias/weighdesk-tui/internal/session"
	"github.com/jeranaias/weighdesk-tui/internal/transport"
	"github.com/jeranaias/weighdesk-tui/internal/ui/components"
	"github.com/jeranaias/weighdesk-tui/internal/ui/styles"
)

// SessionController is the part of session.Controller the program drives.
type SessionController interface {
	Login(ctx context.Context, creds session.Credentials) error
	Logout(ctx context.Context) error
	Status() session.Status
}

// Options configures a Model.
type Options struct {
	Server        string
	LastUser      string
	Theme         *styles.Theme
	Log           *zap.Logger
	WarningWindow func() time.Duration
	// OnLogin is called after a successful sign-in, e.g. to remember the user.
	OnLogin func(username string)
}

type screen int

const (
	screenLogin screen = iota
	screenHome
)

// =============================================================================
// MESSAGES
// =============================================================================

type loginResultMsg struct {
	username string
	err      error
}

type logoutResultMsg struct{ err error }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the root bubbletea model.
type Model struct {
	ctrl  SessionController
	opts  Options
	theme *styles.Theme
	log   *zap.Logger
	keys  KeyMap
	now   func() time.Time

	screen   screen
	username textinput.Model
	password textinput.Model
	focus    int
	busy     string
	errText  string
	quitting bool

	spinner spinner.Model
	dialog  components.ConfirmDialog
	pending map[uint64]chan<- bool
	toasts  *components.ToastManager

	width  int
	height int
}

// New creates the model.
func New(ctrl SessionController, opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme("")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.WarningWindow == nil {
		opts.WarningWindow = func() time.Duration { return session.DefaultWarningWindow }
	}

	user := textinput.New()
	user.Placeholder = "username"
	user.Prompt = ""
	user.CharLimit = 128
	user.SetValue(opts.LastUser)

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.Prompt = ""
	pass.CharLimit = 256
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	m := Model{
		ctrl:     ctrl,
		opts:     opts,
		theme:    theme,
		log:      log.Named("ui"),
		keys:     DefaultKeyMap(),
		now:      time.Now,
		username: user,
		password: pass,
		spinner:  sp,
		dialog:   components.NewConfirmDialog(),
		pending:  make(map[uint64]chan<- bool),
		toasts:   components.NewToastManager(),
	}
	if opts.LastUser != "" {
		m.focus = 1
	}
	m.applyFocus()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, tick())
}

// Update implements tea.Model. Controller calls run inside commands so that
// the event loop never waits on the controller.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.dialog.SetSize(msg.Width, msg.Height)
		return m, nil

	case tickMsg:
		m.toasts.Prune()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case promptMsg:
		// A new question supersedes an unanswered one.
		if m.dialog.IsVisible() {
			m.answer(m.dialog.ID(), false)
		}
		m.pending[msg.id] = msg.reply
		m.dialog.Show(msg.id, msg.title, msg.message, msg.primary, msg.secondary, m.ctrl.Status().ExpiresAt)
		return m, nil

	case promptCancelMsg:
		delete(m.pending, msg.id)
		if m.dialog.IsVisible() && m.dialog.ID() == msg.id {
			m.dialog.Hide()
		}
		return m, nil

	case components.ConfirmResultMsg:
		m.answer(msg.ID, msg.Accepted)
		return m, nil

	case notifyMsg:
		m.toasts.Add(msg.kind, msg.title, msg.message, msg.action)
		return m, nil

	case showLoginMsg:
		m.dialog.Hide()
		m.screen = screenLogin
		m.busy = ""
		m.password.Reset()
		m.focus = 1
		if m.username.Value() == "" {
			m.focus = 0
		}
		m.applyFocus()
		if m.quitting {
			return m, tea.Quit
		}
		return m, textinput.Blink

	case loginResultMsg:
		m.busy = ""
		m.password.Reset()
		if msg.err != nil {
			m.errText = transport.UserMessage(msg.err)
			m.log.Info("sign-in failed", zap.Error(msg.err))
			m.focus = 1
			m.applyFocus()
			return m, nil
		}
		m.errText = ""
		m.screen = screenHome
		if m.opts.OnLogin != nil {
			m.opts.OnLogin(msg.username)
		}
		return m, nil

	case logoutResultMsg:
		m.busy = ""
		if msg.err != nil {
			m.log.Warn("sign-out failed", zap.Error(msg.err))
		}
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.screen == screenLogin && m.busy == "" {
		return m.updateInputs(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m.quit()
	}
	if m.dialog.IsVisible() {
		var cmd tea.Cmd
		m.dialog, cmd = m.dialog.Update(msg)
		return m, cmd
	}
	if m.busy != "" {
		return m, nil
	}

	switch m.screen {
	case screenHome:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m.quit()
		case key.Matches(msg, m.keys.SignOut):
			m.busy = "Signing out..."
			return m, m.logoutCmd()
		}
		return m, nil

	default:
		switch {
		case key.Matches(msg, m.keys.NextField):
			m.focus = (m.focus + 1) % 2
			m.applyFocus()
			return m, nil
		case key.Matches(msg, m.keys.PrevField):
			m.focus = (m.focus + 1) % 2
			m.applyFocus()
			return m, nil
		case key.Matches(msg, m.keys.Submit):
			return m.submit()
		}
		return m.updateInputs(msg)
	}
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	user := strings.TrimSpace(m.username.Value())
	pass := m.password.Value()
	if m.focus == 0 && pass == "" {
		m.focus = 1
		m.applyFocus()
		return m, nil
	}
	if user == "" || pass == "" {
		m.errText = "Enter a username and password."
		return m, nil
	}

	m.errText = ""
	m.busy = "Signing in..."
	creds := session.Credentials{Username: user, Password: pass}
	ctrl := m.ctrl
	return m, func() tea.Msg {
		err := ctrl.Login(context.Background(), creds)
		return loginResultMsg{username: creds.Username, err: err}
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	for id := range m.pending {
		m.answer(id, false)
	}
	m.dialog.Hide()
	if !m.ctrl.Status().Authenticated {
		return m, tea.Quit
	}
	m.busy = "Signing out..."
	return m, m.logoutCmd()
}

func (m Model) logoutCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return logoutResultMsg{err: ctrl.Logout(context.Background())}
	}
}

// answer replies to the question id at most once.
func (m Model) answer(id uint64, accepted bool) {
	reply, ok := m.pending[id]
	if !ok {
		return
	}
	delete(m.pending, id)
	reply <- accepted
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds [2]tea.Cmd
	m.username, cmds[0] = m.username.Update(msg)
	m.password, cmds[1] = m.password.Update(msg)
	return m, tea.Batch(cmds[:]...)
}

func (m *Model) applyFocus() {
	if m.focus == 0 {
		m.username.Focus()
		m.password.Blur()
		return
	}
	m.username.Blur()
	m.password.Focus()
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if m.dialog.IsVisible() {
		return m.dialog.View()
	}

	var body string
	if m.screen == screenHome {
		body = m.viewHome()
	} else {
		body = m.viewLogin()
	}

	if toasts := m.toasts.View(); toasts != "" {
		body = lipgloss.JoinVertical(lipgloss.Left, body, "", toasts)
	}
	return m.theme.App.Render(body)
}

func (m Model) viewLogin() string {
	t := m.theme
	var b strings.Builder
	b.WriteString(t.Title.Render("weighdesk"))
	b.WriteString("  ")
	b.WriteString(t.Subtitle.Render("weighbridge operator console"))
	b.WriteString("\n\n")

	field := func(label string, in textinput.Model, focused bool) string {
		style := t.FieldBlur
		if focused {
			style = t.FieldFocus
		}
		return t.Label.Render(label) + style.Render(in.View())
	}
	form := []string{
		field("User", m.username, m.focus == 0),
		field("Password", m.password, m.focus == 1),
	}
	if m.opts.Server != "" {
		form = append(form, "", t.Muted.Render("Server  "+m.opts.Server))
	}
	b.WriteString(t.Box.Render(strings.Join(form, "\n")))
	b.WriteString("\n\n")

	switch {
	case m.busy != "":
		b.WriteString(m.spinner.View() + " " + m.busy)
	case m.errText != "":
		b.WriteString(styles.RenderError(m.errText))
	default:
		b.WriteString(m.help(m.keys.Submit, m.keys.NextField, m.keys.ForceQuit))
	}
	return b.String()
}

func (m Model) viewHome() string {
	t := m.theme
	st := m.ctrl.Status()
	window := m.opts.WarningWindow()

	var b strings.Builder
	b.WriteString(t.Title.Render("weighdesk"))
	b.WriteString("  ")
	b.WriteString(t.Subtitle.Render("signed in as " + st.Username))
	b.WriteString("\n\n")

	var lines []string
	if st.Authenticated {
		lines = append(lines,
			"Session expires  "+st.ExpiresAt.Local().Format("15:04:05"),
			"Time remaining   "+t.RemainingStyle(st.Remaining, window).Render(components.FormatCountdown(st.Remaining)),
		)
		if !st.WarningAt.IsZero() {
			lines = append(lines, t.Muted.Render("You will be asked to extend at "+st.WarningAt.Local().Format("15:04:05")))
		}
	} else {
		lines = append(lines, t.Muted.Render("No active session."))
	}
	b.WriteString(t.Box.Render(strings.Join(lines, "\n")))
	b.WriteString("\n\n")

	if m.busy != "" {
		b.WriteString(m.spinner.View() + " " + m.busy)
	} else {
		b.WriteString(m.help(m.keys.SignOut, m.keys.Quit))
	}
	b.WriteString("\n\n")

	bar := components.StatusBar{
		Width:         m.width - 4,
		Username:      st.Username,
		Server:        m.opts.Server,
		State:         st.State.String(),
		Remaining:     st.Remaining,
		WarningWindow: window,
		Authenticated: st.Authenticated,
	}
	b.WriteString(bar.View(t))
	return b.String()
}

func (m Model) help(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		parts = append(parts, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDsc.Render(h.Desc))
	}
	return strings.Join(parts, "  ")
}
