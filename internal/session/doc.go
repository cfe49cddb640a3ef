// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the authenticated session lifecycle for weighdesk.
//
// A session is the bearer/cookie token issued by the weighbridge server plus
// its expiration. This package holds that state, schedules a warning shortly
// before the token expires, asks the operator whether to extend it, and falls
// back to a forced logout when the extension fails or is declined.
//
// # Key Types
//
//   - Session: token value and expiration timestamp
//   - Store: the single live Session (memory only)
//   - Scheduler: one-shot timer that fires a warning window before expiry
//   - Controller: serial state machine driving login, refresh and logout
//
// # Usage
//
//	ctrl := session.NewController(client, session.Collaborators{
//	    Prompter: bridge,
//	    Notifier: bridge,
//	    Entry:    bridge,
//	}, session.WithLogger(log))
//	go ctrl.Run(ctx)
//
//	if err := ctrl.Login(ctx, session.Credentials{Username: u, Password: p}); err != nil {
//	    // typed transport error, see internal/transport
//	}
//
// # Concurrency
//
// All state transitions happen on the goroutine running Controller.Run.
// Network calls and the operator prompt run on helper goroutines that post
// their result back to that loop, so the loop never blocks on I/O. Timer
// fires carry a generation number; a fire whose generation is no longer
// current is dropped.
package session
