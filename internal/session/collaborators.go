// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"

	"github.com/jeranaias/weighdesk-tui/internal/audit"
)

// =============================================================================
// CONSUMED INTERFACES
// =============================================================================

// Authenticator performs the network side of a session.
// *transport.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (Session, error)
	RefreshToken(ctx context.Context) (Session, error)
	// Logout is best effort and never fails.
	Logout(ctx context.Context)
}

// Prompter asks the operator a yes/no question. Only one call is outstanding
// at a time. It returns true for the primary choice and false when ctx is
// cancelled.
type Prompter interface {
	Confirm(ctx context.Context, title, message, primaryLabel, secondaryLabel string) bool
}

// Notifier shows fire-and-forget notifications.
type Notifier interface {
	NotifyError(message, title string)
	NotifySuccess(message, title string)
	NotifyInfo(message, title, actionLabel string)
}

// EntryPoint is the unauthenticated screen of the application.
type EntryPoint interface {
	// Show discards any authenticated view and displays the login screen.
	Show()
}

// EntryPointResolver builds the login entry point after a forced logout.
// A failure here is fatal: without a session or a login screen there is
// nothing safe left to show.
type EntryPointResolver interface {
	ResolveLoginEntryPoint() (EntryPoint, error)
}

// Collaborators groups the presentation-side dependencies of a Controller.
type Collaborators struct {
	Prompter Prompter
	Notifier Notifier
	Entry    EntryPointResolver
}

// Auditor receives session lifecycle events. Optional.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event) error
}

// LoginGuard throttles repeated rejected logins. Optional.
type LoginGuard interface {
	Check(username string) error
	RecordFailure(username string)
	RecordSuccess(username string)
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// rejecter is implemented by errors that represent the server refusing the
// credentials (as opposed to the request never reaching it).
type rejecter interface {
	Rejected() bool
}

// userMessager is implemented by errors that carry operator-facing text.
type userMessager interface {
	UserMessage() string
}
