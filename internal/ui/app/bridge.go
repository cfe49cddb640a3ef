// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/weighdesk-tui/internal/security"
	"github.com/jeranaias/weighdesk-tui/internal/session"
	"github.com/jeranaias/weighdesk-tui/internal/ui/components"
)

// ErrNoProgram is returned when the login screen is requested while no
// terminal program is running.
var ErrNoProgram = errors.New("terminal UI is not running")

// Sender delivers messages into a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge connects the session controller to the terminal program. It
// implements session.Prompter, session.Notifier and
// session.EntryPointResolver by posting messages into the program.
type Bridge struct {
	mu     sync.RWMutex
	sender Sender
	nextID atomic.Uint64
}

var (
	_ session.Prompter           = (*Bridge)(nil)
	_ session.Notifier           = (*Bridge)(nil)
	_ session.EntryPointResolver = (*Bridge)(nil)
)

// NewBridge creates a bridge with no program attached.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach routes messages to s.
func (b *Bridge) Attach(s Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sender = s
}

// Detach stops routing messages. Call it once the program has exited.
func (b *Bridge) Detach() {
	b.Attach(nil)
}

// Collaborators returns the bridge in every presentation role.
func (b *Bridge) Collaborators() session.Collaborators {
	return session.Collaborators{Prompter: b, Notifier: b, Entry: b}
}

func (b *Bridge) send(msg tea.Msg) bool {
	b.mu.RLock()
	s := b.sender
	b.mu.RUnlock()
	if s == nil {
		return false
	}
	s.Send(msg)
	return true
}

// =============================================================================
// PROMPTER
// =============================================================================

// promptMsg opens the confirm dialog. The model answers on reply.
type promptMsg struct {
	id        uint64
	title     string
	message   string
	primary   string
	secondary string
	reply     chan<- bool
}

// promptCancelMsg closes a dialog whose question was withdrawn.
type promptCancelMsg struct{ id uint64 }

// Confirm shows a modal question and waits for the answer. Without a running
// program, or once ctx is done, it returns false.
func (b *Bridge) Confirm(ctx context.Context, title, message, primaryLabel, secondaryLabel string) bool {
	id := b.nextID.Add(1)
	reply := make(chan bool, 1)
	if !b.send(promptMsg{
		id:        id,
		title:     title,
		message:   message,
		primary:   primaryLabel,
		secondary: secondaryLabel,
		reply:     reply,
	}) {
		return false
	}

	select {
	case accepted := <-reply:
		return accepted
	case <-ctx.Done():
		b.send(promptCancelMsg{id: id})
		return false
	}
}

// =============================================================================
// NOTIFIER
// =============================================================================

// notifyMsg shows a toast.
type notifyMsg struct {
	kind    components.ToastKind
	title   string
	message string
	action  string
}

// NotifyError shows an error toast.
func (b *Bridge) NotifyError(message, title string) {
	b.notify(components.ToastError, title, message, "")
}

// NotifySuccess shows a success toast.
func (b *Bridge) NotifySuccess(message, title string) {
	b.notify(components.ToastSuccess, title, message, "")
}

// NotifyInfo shows an info toast with an optional action hint.
func (b *Bridge) NotifyInfo(message, title, actionLabel string) {
	b.notify(components.ToastInfo, title, message, actionLabel)
}

// notify strips terminal control sequences: messages can carry server text.
func (b *Bridge) notify(kind components.ToastKind, title, message, action string) {
	b.send(notifyMsg{
		kind:    kind,
		title:   security.SanitizeDisplay(title),
		message: security.SanitizeDisplay(message),
		action:  security.SanitizeDisplay(action),
	})
}

// =============================================================================
// ENTRY POINT
// =============================================================================

// showLoginMsg switches the program to the login screen.
type showLoginMsg struct{}

type loginEntry struct{ b *Bridge }

// Show implements session.EntryPoint.
func (e loginEntry) Show() {
	e.b.send(showLoginMsg{})
}

// ResolveLoginEntryPoint returns the login screen of the attached program.
func (b *Bridge) ResolveLoginEntryPoint() (session.EntryPoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.sender == nil {
		return nil, ErrNoProgram
	}
	return loginEntry{b: b}, nil
}
