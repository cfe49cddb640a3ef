// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by weighdesk packages.
//
// # Key Functions
//
// Display width:
//   - StringWidth, TruncateWidth, PadRight: terminal column math via go-runewidth
//
// File Operations:
//   - AtomicWriteFileWithDir: crash-safe file writing with fsync
package util
