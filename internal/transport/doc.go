// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport is the HTTP client for the weighbridge service.
//
// A Client owns a cookie jar. Login and RefreshToken store the session
// cookie in it; Logout empties it. Connection hands out a request handle
// that rides on the same jar.
//
// # Endpoints
//
//   - POST  /login   {"gus_user","gus_password"}  issues a session
//   - PATCH /login   (no body)                      extends the session
//   - POST  /logout                                 ends the session
//
// A successful login or refresh answers
//
//	{"status":"OK","Meta":{"msg":"..."},"Data":{"expiresAt":"...","token":"..."}}
//
// and failures answer {"message","error","statusCode"}.
//
// # Errors
//
// Every failure is one of *TransportError (no usable response),
// *ServiceError (the server said no) or *ProtocolError (the server said yes
// but omitted the token or expiry). A ProtocolError unwraps to an
// Unauthorized ServiceError.
package transport
