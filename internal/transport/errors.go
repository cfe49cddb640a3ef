// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// =============================================================================
// STATUS CODES
// =============================================================================

// StatusCode is the fixed set of server rejections the client distinguishes.
type StatusCode int

const (
	StatusInternal StatusCode = iota
	StatusBadRequest
	StatusUnauthorized
	StatusForbidden
	StatusNotFound
	StatusRequestTimeout
	StatusConflict
	StatusNotImplemented
)

// CodeFromHTTP maps an HTTP status to a StatusCode. Unrecognized statuses
// map to StatusInternal.
func CodeFromHTTP(status int) StatusCode {
	switch status {
	case http.StatusBadRequest:
		return StatusBadRequest
	case http.StatusUnauthorized:
		return StatusUnauthorized
	case http.StatusForbidden:
		return StatusForbidden
	case http.StatusNotFound:
		return StatusNotFound
	case http.StatusRequestTimeout:
		return StatusRequestTimeout
	case http.StatusConflict:
		return StatusConflict
	case http.StatusNotImplemented:
		return StatusNotImplemented
	default:
		return StatusInternal
	}
}

// String returns the code name.
func (c StatusCode) String() string {
	switch c {
	case StatusBadRequest:
		return "bad_request"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusForbidden:
		return "forbidden"
	case StatusNotFound:
		return "not_found"
	case StatusRequestTimeout:
		return "request_timeout"
	case StatusConflict:
		return "conflict"
	case StatusNotImplemented:
		return "not_implemented"
	default:
		return "internal"
	}
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// ServiceError is a structured rejection returned by the server.
type ServiceError struct {
	// Code is the mapped status.
	Code StatusCode
	// HTTPStatus is the raw HTTP status, 0 when the rejection came inside a
	// successful response envelope.
	HTTPStatus int
	// ErrorType is the server's "error" field.
	ErrorType string
	// Details is the server's message.
	Details string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("service error [%s/%s]: %s", e.Code, e.ErrorType, e.Details)
	}
	return fmt.Sprintf("service error [%s]: %s", e.Code, e.Details)
}

// Rejected reports whether the server refused the credentials.
func (e *ServiceError) Rejected() bool {
	return e.Code == StatusUnauthorized || e.Code == StatusForbidden
}

// UserMessage returns operator-facing text.
func (e *ServiceError) UserMessage() string {
	switch e.Code {
	case StatusUnauthorized:
		if e.Details != "" {
			return e.Details
		}
		return "Invalid credentials."
	case StatusForbidden:
		return "Access denied."
	case StatusRequestTimeout:
		return "The server timed out processing the request."
	case StatusNotFound, StatusNotImplemented:
		return "The server does not support this operation."
	case StatusBadRequest, StatusConflict:
		if e.Details != "" {
			return e.Details
		}
		return "The server rejected the request."
	default:
		return "The server reported an internal error."
	}
}

// TransportError means the request never produced a usable response:
// network failure, timeout, or a body that could not be decoded.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// UserMessage returns operator-facing text.
func (e *TransportError) UserMessage() string {
	if e.Timeout() {
		return "The server did not respond in time."
	}
	if errors.Is(e.Err, ErrMalformedResponse) {
		return "The server sent an unreadable response."
	}
	return "Could not reach the server. Check the network connection."
}

// ProtocolError is a successful HTTP response that lacks what a session
// needs (token, expiration) or has an unexpected envelope. It is treated as
// an Unauthorized rejection: errors.As(err, **ServiceError) succeeds.
type ProtocolError struct {
	Reason string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// Unwrap exposes the equivalent ServiceError.
func (e *ProtocolError) Unwrap() error {
	return &ServiceError{Code: StatusUnauthorized, Details: e.Reason}
}

// Rejected is false: the server accepted the request but answered badly.
func (e *ProtocolError) Rejected() bool {
	return false
}

// UserMessage returns operator-facing text.
func (e *ProtocolError) UserMessage() string {
	return "The server response did not contain a valid session (" + e.Reason + ")."
}

// =============================================================================
// SENTINELS AND HELPERS
// =============================================================================

var (
	// ErrMalformedResponse wraps body decoding failures.
	ErrMalformedResponse = errors.New("malformed response body")

	// ErrResponseTooLarge is returned when a body exceeds MaxResponseSize.
	ErrResponseTooLarge = errors.New("response exceeded maximum size")
)

// CodeOf returns the StatusCode carried by err, and false if err is not a
// server rejection.
func CodeOf(err error) (StatusCode, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsUnauthorized reports whether err is (or is equivalent to) an
// Unauthorized rejection.
func IsUnauthorized(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == StatusUnauthorized
}

// UserMessage returns operator-facing text for any error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return "Unexpected error: " + err.Error()
}
