// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing for weighdesk.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdLogin
	CmdAudit
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdLogin:
		return "login"
	case CmdAudit:
		return "audit"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Server  string // --server overrides server.base_url
	Theme   string // --theme overrides ui.theme
	User    string // --user prefills the username
	Verbose bool   // -v enables debug logging
	JSON    bool   // --json output

	// Subcommand and the arguments after it
	Subcommand string
	Raw        []string

	// Unknown is an unrecognized command word
	Unknown string
}

// Parser returns an ArgParser over the arguments after the command.
func (a Args) Parser() *ArgParser {
	return NewArgParser(a.Raw)
}

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv (without the program name). Global flags may
// appear anywhere; the first non-flag word selects the command.
func ParseArgs(argv []string) (Command, Args) {
	var args Args
	rest := parseGlobalFlags(argv, &args)

	if args.Subcommand == "help" {
		return CmdHelp, args
	}
	if len(rest) == 0 {
		return CmdTUI, args
	}

	name := strings.ToLower(rest[0])
	args.Raw = rest[1:]
	if len(args.Raw) > 0 && !strings.HasPrefix(args.Raw[0], "-") {
		args.Subcommand = args.Raw[0]
	}

	switch name {
	case "tui", "ui":
		return CmdTUI, args
	case "login":
		return CmdLogin, args
	case "audit":
		return CmdAudit, args
	case "config", "cfg":
		return CmdConfig, args
	case "version", "--version", "-V":
		return CmdVersion, args
	case "help", "--help", "-h":
		return CmdHelp, args
	default:
		args.Unknown = rest[0]
		return CmdHelp, args
	}
}

// parseGlobalFlags strips global flags from argv into args and returns
// the remaining words.
func parseGlobalFlags(argv []string, args *Args) []string {
	var rest []string
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		name, value, hasValue := strings.Cut(arg, "=")

		takeValue := func() string {
			if hasValue {
				return value
			}
			if i+1 < len(argv) {
				i++
				return argv[i]
			}
			return ""
		}

		switch name {
		case "--server", "-s":
			args.Server = takeValue()
		case "--theme":
			args.Theme = takeValue()
		case "--user", "-u":
			args.User = takeValue()
		case "--verbose", "-v":
			args.Verbose = true
		case "--json":
			args.JSON = true
		case "--help", "-h":
			if len(rest) == 0 {
				args.Subcommand = "help"
			} else {
				rest = append(rest, arg)
			}
		case "--version", "-V":
			if len(rest) == 0 {
				rest = append(rest, "version")
			} else {
				rest = append(rest, arg)
			}
		default:
			rest = append(rest, arg)
		}
	}
	return rest
}

// PrintVersion writes version information to w.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "weighdesk %s\n", Version)
	fmt.Fprintf(w, "  Commit:  %s\n", GitCommit)
	fmt.Fprintf(w, "  Built:   %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
