// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the weighdesk command line: argument parsing,
// the non-interactive subcommands (login, audit, config, version, help),
// error display and exit codes.
//
// The terminal UI itself lives in internal/ui/app; main dispatches to it
// for the default command.
package cli
