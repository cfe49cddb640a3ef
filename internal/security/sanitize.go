// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxDisplayLength caps server-supplied text shown in the terminal.
const MaxDisplayLength = 300

// ansiEscape matches CSI and OSC terminal escape sequences.
var ansiEscape = regexp.MustCompile(`\x1b(\[[0-9;?]*[ -/]*[@-~]|\][^\x07\x1b]*(\x07|\x1b\\))`)

// SanitizeDisplay makes server-supplied text safe to print in a terminal.
// Escape sequences and control characters are removed, whitespace runs are
// collapsed and the result is capped at MaxDisplayLength runes.
func SanitizeDisplay(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	if normalized, _, err := transform.String(norm.NFKC, s); err == nil {
		s = normalized
	}

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}

	out := b.String()
	if runes := []rune(out); len(runes) > MaxDisplayLength {
		out = string(runes[:MaxDisplayLength-3]) + "..."
	}
	return out
}
