// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit records session lifecycle events for later review.
//
// Events are written to a local SQLite database (pure Go driver) so that an
// operator or administrator can see when sessions were opened, extended and
// closed, and why a forced logout happened.
//
//	log, err := audit.Open(path)
//	if err != nil {
//	    return err
//	}
//	defer log.Close()
//
//	_ = log.Record(ctx, audit.NewEvent(audit.KindLogin, "a@b.com", "expires ..."))
//	events, _ := log.Recent(ctx, 20)
//
// Credentials and tokens are never part of an event.
package audit
