// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/weighdesk-tui/internal/audit"
	"github.com/jeranaias/weighdesk-tui/internal/config"
	"github.com/jeranaias/weighdesk-tui/internal/security"
	"github.com/jeranaias/weighdesk-tui/internal/transport"
)

// Env carries what every command handler needs.
type Env struct {
	Config *config.Config
	Log    *zap.Logger
	Args   Args

	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// NewEnv returns an Env bound to the process's standard streams.
func NewEnv(cfg *config.Config, log *zap.Logger, args Args) *Env {
	if log == nil {
		log = zap.NewNop()
	}
	return &Env{Config: cfg, Log: log, Args: args, In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// ApplyOverrides copies global flags onto cfg.
func ApplyOverrides(cfg *config.Config, args Args) {
	if args.Server != "" {
		cfg.Server.BaseURL = args.Server
	}
	if args.Theme != "" {
		cfg.UI.Theme = args.Theme
	}
	if args.User != "" {
		cfg.UI.LastUser = args.User
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}
}

// BuildClient creates the service client described by cfg.
func BuildClient(cfg *config.Config, log *zap.Logger) (*transport.Client, error) {
	if cfg.Server.BaseURL == "" {
		return nil, &ValidationError{
			Field:   "server.base_url",
			Reason:  "no server configured",
			Example: "weighdesk config set server.base_url https://scale.example.com/api",
		}
	}
	tlsConfig, err := transport.TLSConfig(cfg.Server.CAFile)
	if err != nil {
		return nil, err
	}
	cc := transport.DefaultConfig(cfg.Server.BaseURL)
	cc.Timeout = cfg.RequestTimeout()
	cc.TLSConfig = tlsConfig
	cc.AuthRate = rate.Limit(cfg.Security.AuthRatePerSec)
	cc.AuthBurst = cfg.Security.AuthBurst
	cc.Logger = log
	return transport.NewClient(cc)
}

// BuildLockout creates the login lockout described by cfg.
func BuildLockout(cfg *config.Config, log *zap.Logger) *security.LockoutManager {
	return security.NewLockoutManager(
		security.WithMaxAttempts(cfg.Security.MaxLoginAttempts),
		security.WithLockoutDuration(cfg.LockoutDuration()),
		security.WithLockoutLogger(log),
	)
}

// OpenAudit opens the audit trail, or returns nil when it is disabled.
func OpenAudit(cfg *config.Config) (*audit.Log, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	path, err := cfg.AuditPath()
	if err != nil {
		return nil, err
	}
	return audit.Open(path)
}
