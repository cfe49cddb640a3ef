// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// login_cmd.go - "weighdesk login": verify credentials without the UI.
//
// Signs in, prints the session expiry, and signs out again unless --keep
// is given. Useful for checking server settings and TLS trust from a
// script (--password-stdin) or a terminal.

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/jeranaias/weighdesk-tui/internal/audit"
	"github.com/jeranaias/weighdesk-tui/internal/session"
)

// loginResult is the --json output of the login command.
type loginResult struct {
	Success     bool      `json:"success"`
	Server      string    `json:"server"`
	Username    string    `json:"username"`
	ExpiresAt   time.Time `json:"expires_at"`
	Remaining   string    `json:"remaining"`
	Fingerprint string    `json:"fingerprint"`
	SignedOut   bool      `json:"signed_out"`
}

// HandleLogin runs the login command.
func HandleLogin(ctx context.Context, env *Env) error {
	p := env.Args.Parser()

	client, err := BuildClient(env.Config, env.Log)
	if err != nil {
		return err
	}

	creds, err := readCredentials(env, p)
	if err != nil {
		return err
	}

	auditLog, err := OpenAudit(env.Config)
	if err != nil {
		env.Log.Warn("audit trail unavailable", zap.Error(err))
	}
	if auditLog != nil {
		defer auditLog.Close()
	}
	record := func(kind audit.Kind, detail string) {
		if auditLog == nil {
			return
		}
		if err := auditLog.Record(ctx, audit.NewEvent(kind, creds.Username, detail)); err != nil {
			env.Log.Warn("failed to record audit event", zap.Error(err))
		}
	}

	sess, err := client.Login(ctx, creds)
	if err != nil {
		record(audit.KindLoginFailed, err.Error())
		return err
	}
	record(audit.KindLogin, "cli fingerprint="+session.Fingerprint(sess.Token))

	keep := p.BoolFlag("keep")
	if !keep {
		client.Logout(ctx)
		record(audit.KindLogout, "cli")
	}

	res := loginResult{
		Success:     true,
		Server:      client.BaseURL(),
		Username:    creds.Username,
		ExpiresAt:   sess.ExpiresAt,
		Remaining:   session.FormatDuration(sess.Remaining()),
		Fingerprint: session.Fingerprint(sess.Token),
		SignedOut:   !keep,
	}
	if env.Args.JSON {
		enc := json.NewEncoder(env.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintln(env.Out, TitleStyle.Render("Signed in"))
	fmt.Fprintln(env.Out, RenderField("Server", res.Server))
	fmt.Fprintln(env.Out, RenderField("User", res.Username))
	fmt.Fprintln(env.Out, RenderField("Expires", res.ExpiresAt.Local().Format("2006-01-02 15:04:05")+" ("+res.Remaining+")"))
	fmt.Fprintln(env.Out, RenderField("Session", res.Fingerprint))
	if res.SignedOut {
		fmt.Fprintln(env.Out, RenderStatus("ok")+" signed out again")
	} else {
		fmt.Fprintln(env.Out, RenderStatus("warn")+" session left open (--keep)")
	}
	return nil
}

// readCredentials gathers the username and password from flags, stdin or
// the terminal.
func readCredentials(env *Env, p *ArgParser) (session.Credentials, error) {
	username := strings.TrimSpace(env.Args.User)
	if username == "" {
		username = strings.TrimSpace(env.Config.UI.LastUser)
	}
	fromStdin := p.BoolFlag("password-stdin")

	if !fromStdin {
		if err := RequiresTTY("sign in"); err != nil {
			return session.Credentials{}, err
		}
	}

	if username == "" {
		if fromStdin {
			return session.Credentials{}, ErrMissingArgument("--user", "weighdesk login --user ops --password-stdin")
		}
		name, err := promptLine("Username: ")
		if err != nil {
			return session.Credentials{}, err
		}
		username = strings.TrimSpace(name)
	}
	if username == "" {
		return session.Credentials{}, ErrMissingArgument("username", "weighdesk login --user ops")
	}

	var password string
	var err error
	if fromStdin {
		password, err = readLine(env.In)
	} else {
		password, err = ReadPassword(env.Err, "Password: ")
	}
	if err != nil {
		return session.Credentials{}, err
	}
	if password == "" {
		return session.Credentials{}, ErrMissingArgument("password", "")
	}
	return session.Credentials{Username: username, Password: password}, nil
}

// promptLine reads one line from the terminal with line editing.
func promptLine(prompt string) (string, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	s, err := line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errors.New("aborted")
	}
	return s, err
}

// readLine reads a single line from r without the trailing newline.
func readLine(r io.Reader) (string, error) {
	s, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}
