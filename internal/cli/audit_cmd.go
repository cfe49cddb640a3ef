// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jeranaias/weighdesk-tui/internal/audit"
)

// DefaultAuditLimit is the number of events shown by "weighdesk audit".
const DefaultAuditLimit = 20

// HandleAudit prints recent session events, newest first.
//
//	weighdesk audit [show] [--limit N] [--json]
func HandleAudit(ctx context.Context, env *Env) error {
	p := env.Args.Parser()

	switch p.Subcommand() {
	case "", "show", "list":
	default:
		return &ValidationError{Field: "audit subcommand", Value: p.Subcommand(), Reason: "unknown", Example: "weighdesk audit show --limit 50"}
	}

	limit := DefaultAuditLimit
	if p.HasFlag("limit") {
		n, err := p.FlagInt("limit")
		if err != nil || n <= 0 {
			return &ValidationError{Field: "--limit", Value: p.Flag("limit"), Reason: "must be a positive integer"}
		}
		limit = n
	}

	if !env.Config.Audit.Enabled {
		return &NotFoundError{Resource: "audit trail", ID: "disabled (audit.enabled = false)"}
	}
	log, err := OpenAudit(env.Config)
	if err != nil {
		return err
	}
	defer log.Close()

	events, err := log.Recent(ctx, limit)
	if err != nil {
		return err
	}

	if env.Args.JSON {
		if events == nil {
			events = []audit.Event{}
		}
		enc := json.NewEncoder(env.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	fmt.Fprintln(env.Out, TitleStyle.Render("Session events"))
	if len(events) == 0 {
		fmt.Fprintln(env.Out, DimStyle.Render("No events recorded yet."))
		return nil
	}
	for _, ev := range events {
		line := ev.ToLogLine()
		if ev.Kind.Success() {
			fmt.Fprintln(env.Out, line)
		} else {
			fmt.Fprintln(env.Out, WarningStyle.Render(line))
		}
	}
	fmt.Fprintln(env.Out, DimStyle.Render(fmt.Sprintf("%d event(s) from %s", len(events), log.Path())))
	return nil
}
