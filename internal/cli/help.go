// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
)

const usageMarkdown = `# weighdesk

Operator console for a weighbridge service. Signs in, keeps the session
alive, and warns before the session expires.

## Usage

| Command | Description |
|---|---|
| ` + "`weighdesk`" + ` | Start the terminal UI (default) |
| ` + "`weighdesk login`" + ` | Check credentials against the server and exit |
| ` + "`weighdesk audit [--limit N]`" + ` | Show recent session events |
| ` + "`weighdesk config [show\\|path\\|get KEY\\|set KEY VALUE]`" + ` | Inspect or change settings |
| ` + "`weighdesk version`" + ` | Print version information |
| ` + "`weighdesk help`" + ` | Show this help |

## Global flags

- ` + "`--server URL`" + `, ` + "`-s URL`" + `: service root, overrides ` + "`server.base_url`" + `
- ` + "`--user NAME`" + `, ` + "`-u NAME`" + `: prefill the username
- ` + "`--theme dark|light`" + `: UI theme
- ` + "`-v`" + `, ` + "`--verbose`" + `: debug logging
- ` + "`--json`" + `: JSON output for ` + "`audit`" + `, ` + "`config`" + ` and errors

## Session expiry

The server issues sessions with a fixed lifetime. Two minutes before the
session ends (` + "`session.warning_window_secs`" + `), weighdesk asks whether to stay
signed in. Accepting refreshes the session; declining signs out.

## Files

- ` + "`~/.weighdesk/config.toml`" + `: settings (` + "`WEIGHDESK_*`" + ` variables override it)
- ` + "`~/.weighdesk/audit.db`" + `: session audit trail
- ` + "`~/.weighdesk/weighdesk.log`" + `: application log
`

// UsageMarkdown returns the help text as markdown.
func UsageMarkdown() string {
	return usageMarkdown
}

// renderMarkdown renders md for a terminal. It returns md unchanged when
// stdout is not a TTY or rendering fails.
func renderMarkdown(md string) string {
	if !IsStdoutTTY() {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(GetTerminalWidth()-4),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// HandleHelp prints usage. An unknown command is reported as a usage error
// after the help text.
func HandleHelp(w io.Writer, args Args) error {
	fmt.Fprint(w, renderMarkdown(usageMarkdown))
	fmt.Fprintf(w, "\nVersion: %s\n", Version)
	if args.Unknown != "" {
		return &ValidationError{Field: "command", Value: args.Unknown, Reason: "unknown command"}
	}
	return nil
}
