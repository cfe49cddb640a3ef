// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Connection issues authenticated requests against the service. It carries
// the cookie of whichever session the Client currently holds.
type Connection struct {
	client *Client
}

// Authenticated reports whether a session credential is present.
func (c *Connection) Authenticated() bool {
	return c.client.Authenticated()
}

// Do sends in as a JSON body (nil for none) and decodes a 2xx response into
// out (nil to discard). Non-2xx responses return a *ServiceError.
func (c *Connection) Do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path

	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
	}

	resp, err := c.client.send(ctx, method, path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseServiceError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return nil
}

// GetJSON is Do with GET and no body.
func (c *Connection) GetJSON(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON is Do with POST.
func (c *Connection) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}
