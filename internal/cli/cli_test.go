// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeranaias/weighdesk-tui/internal/audit"
	"github.com/jeranaias/weighdesk-tui/internal/config"
	"github.com/jeranaias/weighdesk-tui/internal/security"
	"github.com/jeranaias/weighdesk-tui/internal/transport"
)

// =============================================================================
// PARSING
// =============================================================================

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name  string
		argv  []string
		cmd   Command
		check func(t *testing.T, a Args)
	}{
		{"empty starts tui", nil, CmdTUI, nil},
		{"verbose tui", []string{"-v"}, CmdTUI, func(t *testing.T, a Args) {
			require.True(t, a.Verbose)
		}},
		{"login with server", []string{"--server", "https://scale.example.com", "login", "--password-stdin"}, CmdLogin, func(t *testing.T, a Args) {
			require.Equal(t, "https://scale.example.com", a.Server)
			require.Equal(t, []string{"--password-stdin"}, a.Raw)
		}},
		{"global flag after command", []string{"login", "--user=ops", "--json"}, CmdLogin, func(t *testing.T, a Args) {
			require.Equal(t, "ops", a.User)
			require.True(t, a.JSON)
			require.Empty(t, a.Raw)
		}},
		{"audit limit", []string{"audit", "--limit", "5"}, CmdAudit, func(t *testing.T, a Args) {
			n, err := a.Parser().FlagInt("limit")
			require.NoError(t, err)
			require.Equal(t, 5, n)
		}},
		{"config set", []string{"config", "set", "ui.theme", "light"}, CmdConfig, func(t *testing.T, a Args) {
			require.Equal(t, "set", a.Subcommand)
		}},
		{"version flag", []string{"--version"}, CmdVersion, nil},
		{"version word", []string{"version"}, CmdVersion, nil},
		{"help flag", []string{"-h"}, CmdHelp, nil},
		{"unknown command", []string{"frobnicate"}, CmdHelp, func(t *testing.T, a Args) {
			require.Equal(t, "frobnicate", a.Unknown)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := ParseArgs(tt.argv)
			require.Equal(t, tt.cmd, cmd, "got %s", cmd)
			if tt.check != nil {
				tt.check(t, args)
			}
		})
	}
}

func TestArgParser(t *testing.T) {
	p := NewArgParser([]string{"set", "ui.theme", "light", "--json", "--limit=5", "-n", "3", "--dry=false"})

	require.Equal(t, "set", p.Subcommand())
	require.Equal(t, "ui.theme", p.Positional(1))
	require.Equal(t, []string{"light"}, p.PositionalFrom(2))
	require.Equal(t, 3, p.PositionalCount())
	require.Equal(t, "", p.Positional(9))

	require.True(t, p.BoolFlag("json"))
	require.False(t, p.BoolFlag("dry"))
	require.True(t, p.HasFlag("dry"))
	require.Equal(t, "5", p.Flag("limit"))
	require.Equal(t, "3", p.Flag("n"))
	require.Equal(t, "fallback", p.FlagOrDefault("missing", "fallback"))

	n, err := p.FlagInt("limit")
	require.NoError(t, err)
	require.Equal(t, 5, n)
	_, err = p.FlagInt("missing")
	require.Error(t, err)
}

func TestArgParser_DoubleDash(t *testing.T) {
	p := NewArgParser([]string{"set", "--", "ui.last_user", "--weird"})
	require.Equal(t, []string{"set", "ui.last_user", "--weird"}, p.PositionalFrom(0))
	require.False(t, p.HasFlag("weird"))
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"true", "YES", "y", "1", "on"} {
		b, err := ParseBoolString(s)
		require.NoError(t, err, s)
		require.True(t, b, s)
	}
	for _, s := range []string{"false", "No", "n", "0", "off"} {
		b, err := ParseBoolString(s)
		require.NoError(t, err, s)
		require.False(t, b, s)
	}
	_, err := ParseBoolString("maybe")
	require.Error(t, err)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", ErrMissingArgument("KEY", ""), ExitUsageError},
		{"not found", &NotFoundError{Resource: "config key", ID: "x"}, ExitNotFoundError},
		{"config", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "log.level", Message: "bad"}}), ExitConfigError},
		{"lockout", &security.LockedError{Remaining: time.Minute}, ExitAuthError},
		{"rejected", &transport.ServiceError{Code: transport.StatusUnauthorized}, ExitAuthError},
		{"server fault", &transport.ServiceError{Code: transport.StatusInternal}, ExitGeneralError},
		{"network", &transport.TransportError{Op: "login", Err: errors.New("connection refused")}, ExitNetworkError},
		{"timeout", &transport.TransportError{Op: "login", Err: context.DeadlineExceeded}, ExitTimeoutError},
		{"tty", &TTYRequiredError{Operation: "sign in"}, ExitUsageError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, &transport.ServiceError{Code: transport.StatusForbidden}, true)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, false, out["success"])
	require.Equal(t, "Access denied.", out["error"])
	require.EqualValues(t, ExitAuthError, out["exit_code"])

	buf.Reset()
	DisplayError(&buf, errors.New("plain failure"), false)
	require.Contains(t, buf.String(), "plain failure")

	buf.Reset()
	DisplayError(&buf, nil, false)
	require.Empty(t, buf.String())
}

func TestHandleHelp(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HandleHelp(&buf, Args{}))
	require.Contains(t, buf.String(), "weighdesk login")

	err := HandleHelp(&buf, Args{Unknown: "frobnicate"})
	require.Equal(t, ExitUsageError, GetExitCode(err))
}

// =============================================================================
// COMMANDS
// =============================================================================

// isolate points the home directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, k := range []string{"WEIGHDESK_SERVER_URL", "WEIGHDESK_WARNING_WINDOW_SECS", "WEIGHDESK_LOG_LEVEL", "WEIGHDESK_USER", "WEIGHDESK_CA_FILE"} {
		t.Setenv(k, "")
	}
	return home
}

func testEnv(t *testing.T, cfg *config.Config, in string, argv ...string) (*Env, *bytes.Buffer) {
	t.Helper()
	_, args := ParseArgs(argv)
	ApplyOverrides(cfg, args)
	var out bytes.Buffer
	return &Env{
		Config: cfg,
		Log:    zap.NewNop(),
		Args:   args,
		In:     strings.NewReader(in),
		Out:    &out,
		Err:    &bytes.Buffer{},
	}, &out
}

// loginServer accepts ops/secret and counts logouts.
func loginServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var logouts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/login":
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			w.Header().Set("Content-Type", "application/json")
			if req["gus_user"] != "ops" || req["gus_password"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"Wrong user or password","error":"Unauthorized","statusCode":401}`))
				return
			}
			http.SetCookie(w, &http.Cookie{Name: transport.TokenCookie, Value: "tok-cli", Path: "/"})
			w.Write([]byte(`{"status":"OK","Meta":{"msg":"welcome"},"Data":{"expiresAt":"2030-01-02T03:04:05Z"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/logout":
			logouts.Add(1)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &logouts
}

func TestHandleLogin(t *testing.T) {
	home := isolate(t)
	srv, logouts := loginServer(t)

	cfg := config.Default()
	cfg.Audit.Path = filepath.Join(home, "audit.db")
	env, out := testEnv(t, cfg, "secret\n",
		"--server", srv.URL, "--user", "ops", "--json", "login", "--password-stdin")

	require.NoError(t, HandleLogin(context.Background(), env))

	var res loginResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.True(t, res.Success)
	require.Equal(t, "ops", res.Username)
	require.True(t, res.SignedOut)
	require.Equal(t, time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC), res.ExpiresAt.UTC())
	require.Equal(t, int32(1), logouts.Load())

	log, err := audit.Open(cfg.Audit.Path)
	require.NoError(t, err)
	defer log.Close()
	events, err := log.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, audit.KindLogout, events[0].Kind)
	require.Equal(t, audit.KindLogin, events[1].Kind)
}

func TestHandleLogin_Rejected(t *testing.T) {
	isolate(t)
	srv, logouts := loginServer(t)

	cfg := config.Default()
	cfg.Audit.Enabled = false
	env, _ := testEnv(t, cfg, "wrong\n", "--server", srv.URL, "-u", "ops", "login", "--password-stdin")

	err := HandleLogin(context.Background(), env)
	require.Error(t, err)
	require.Equal(t, ExitAuthError, GetExitCode(err))
	require.Equal(t, int32(0), logouts.Load())
}

func TestHandleLogin_NeedsServerAndUser(t *testing.T) {
	isolate(t)

	env, _ := testEnv(t, config.Default(), "secret\n", "login", "--password-stdin")
	err := HandleLogin(context.Background(), env)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "server.base_url", ve.Field)

	env, _ = testEnv(t, config.Default(), "secret\n", "--server", "https://scale.example.com", "login", "--password-stdin")
	err = HandleLogin(context.Background(), env)
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "--user", ve.Field)
}

func TestHandleAudit(t *testing.T) {
	home := isolate(t)
	cfg := config.Default()
	cfg.Audit.Path = filepath.Join(home, "audit.db")

	log, err := audit.Open(cfg.Audit.Path)
	require.NoError(t, err)
	for _, k := range []audit.Kind{audit.KindLogin, audit.KindRefresh, audit.KindForcedLogout} {
		require.NoError(t, log.Record(context.Background(), audit.NewEvent(k, "ops", "")))
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, log.Close())

	env, out := testEnv(t, cfg, "", "--json", "audit", "--limit", "2")
	require.NoError(t, HandleAudit(context.Background(), env))

	var events []audit.Event
	require.NoError(t, json.Unmarshal(out.Bytes(), &events))
	require.Len(t, events, 2)
	require.Equal(t, audit.KindForcedLogout, events[0].Kind)

	env, out = testEnv(t, cfg, "", "audit")
	require.NoError(t, HandleAudit(context.Background(), env))
	require.Contains(t, out.String(), "FORCED_LOGOUT")
	require.Contains(t, out.String(), "3 event(s)")

	env, _ = testEnv(t, cfg, "", "audit", "--limit", "zero")
	require.Equal(t, ExitUsageError, GetExitCode(HandleAudit(context.Background(), env)))

	cfg.Audit.Enabled = false
	env, _ = testEnv(t, cfg, "", "audit")
	require.Equal(t, ExitNotFoundError, GetExitCode(HandleAudit(context.Background(), env)))
}

func TestHandleConfig_SetGet(t *testing.T) {
	isolate(t)

	env, out := testEnv(t, config.Default(), "", "config", "set", "session.warning_window_secs", "180")
	require.NoError(t, HandleConfig(env))
	require.Contains(t, out.String(), "session.warning_window_secs = 180")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, 3*time.Minute, cfg.WarningWindow())

	env, out = testEnv(t, cfg, "", "config", "get", "session.warning_window_secs")
	require.NoError(t, HandleConfig(env))
	require.Equal(t, "180\n", out.String())

	env, _ = testEnv(t, cfg, "", "config", "set", "audit.enabled", "no")
	require.NoError(t, HandleConfig(env))
	cfg, err = config.Load()
	require.NoError(t, err)
	require.False(t, cfg.Audit.Enabled)
}

func TestHandleConfig_Errors(t *testing.T) {
	isolate(t)
	cfg := config.Default()

	env, _ := testEnv(t, cfg, "", "config", "set", "log.level", "loud")
	err := HandleConfig(env)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "log.level", ve.Field)

	env, _ = testEnv(t, cfg, "", "config", "get", "no.such_key")
	require.Equal(t, ExitNotFoundError, GetExitCode(HandleConfig(env)))

	env, _ = testEnv(t, cfg, "", "config", "set", "ui.theme")
	require.Equal(t, ExitUsageError, GetExitCode(HandleConfig(env)))

	env, _ = testEnv(t, cfg, "", "config", "explode")
	require.Equal(t, ExitUsageError, GetExitCode(HandleConfig(env)))
}

func TestHandleConfig_ShowAndPath(t *testing.T) {
	home := isolate(t)
	cfg := config.Default()

	env, out := testEnv(t, cfg, "", "config", "path")
	require.NoError(t, HandleConfig(env))
	require.Equal(t, filepath.Join(home, ".weighdesk", "config.toml")+"\n", out.String())

	env, out = testEnv(t, cfg, "", "config", "show")
	require.NoError(t, HandleConfig(env))
	require.Contains(t, out.String(), "warning_window_secs = 120")

	env, out = testEnv(t, cfg, "", "--json", "config", "keys")
	require.NoError(t, HandleConfig(env))
	var keys []string
	require.NoError(t, json.Unmarshal(out.Bytes(), &keys))
	require.Equal(t, config.GetAllKeys(), keys)
}
