// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides the reusable widgets of the weighdesk TUI.
//
//   - ConfirmDialog: modal two-button question (session extension prompt)
//   - ToastManager: non-blocking notifications that auto-dismiss
//   - StatusBar: bottom line with user, state and the expiry countdown
package components
