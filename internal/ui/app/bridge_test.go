// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/weighdesk-tui/internal/ui/components"
)

// chanSender captures messages sent to the program.
type chanSender struct{ ch chan tea.Msg }

func newChanSender() *chanSender { return &chanSender{ch: make(chan tea.Msg, 16)} }

func (s *chanSender) Send(msg tea.Msg) { s.ch <- msg }

func (s *chanSender) next(t *testing.T) tea.Msg {
	t.Helper()
	select {
	case msg := <-s.ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message sent")
		return nil
	}
}

func TestBridge_ConfirmAnswered(t *testing.T) {
	b := NewBridge()
	s := newChanSender()
	b.Attach(s)

	done := make(chan bool, 1)
	go func() {
		done <- b.Confirm(context.Background(), "Session expiring", "Extend?", "Extend", "Log out")
	}()

	msg, ok := s.next(t).(promptMsg)
	require.True(t, ok)
	require.Equal(t, "Extend", msg.primary)
	require.Equal(t, "Log out", msg.secondary)
	msg.reply <- true

	require.True(t, <-done)
}

func TestBridge_ConfirmCancelled(t *testing.T) {
	b := NewBridge()
	s := newChanSender()
	b.Attach(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- b.Confirm(ctx, "t", "m", "Extend", "Log out") }()

	prompt := s.next(t).(promptMsg)
	cancel()

	require.False(t, <-done)
	cancelMsg, ok := s.next(t).(promptCancelMsg)
	require.True(t, ok)
	require.Equal(t, prompt.id, cancelMsg.id)
}

func TestBridge_ConfirmWithoutProgram(t *testing.T) {
	require.False(t, NewBridge().Confirm(context.Background(), "t", "m", "y", "n"))
}

func TestBridge_NotifySanitizes(t *testing.T) {
	b := NewBridge()
	s := newChanSender()
	b.Attach(s)

	b.NotifyError("bad \x1b[31mtoken\x1b[0m\n\tvalue", "Refresh failed")
	msg := s.next(t).(notifyMsg)
	require.Equal(t, components.ToastError, msg.kind)
	require.Equal(t, "bad token value", msg.message)

	b.NotifySuccess("Session extended.", "Session")
	require.Equal(t, components.ToastSuccess, s.next(t).(notifyMsg).kind)

	b.NotifyInfo("Signed out.", "Session", "Sign in again")
	info := s.next(t).(notifyMsg)
	require.Equal(t, components.ToastInfo, info.kind)
	require.Equal(t, "Sign in again", info.action)
}

func TestBridge_ResolveLoginEntryPoint(t *testing.T) {
	b := NewBridge()
	_, err := b.ResolveLoginEntryPoint()
	require.ErrorIs(t, err, ErrNoProgram)

	s := newChanSender()
	b.Attach(s)
	ep, err := b.ResolveLoginEntryPoint()
	require.NoError(t, err)
	ep.Show()
	require.IsType(t, showLoginMsg{}, s.next(t))

	b.Detach()
	_, err = b.ResolveLoginEntryPoint()
	require.ErrorIs(t, err, ErrNoProgram)
}

func TestBridge_Collaborators(t *testing.T) {
	b := NewBridge()
	c := b.Collaborators()
	require.Same(t, b, c.Prompter)
	require.Same(t, b, c.Notifier)
	require.Same(t, b, c.Entry)
}
