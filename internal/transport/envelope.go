// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusOK is the envelope status of a successful login or refresh.
const StatusOK = "OK"

// loginRequest is the body of POST /login.
type loginRequest struct {
	User     string `json:"gus_user"`
	Password string `json:"gus_password"`
}

// envelope is the success response of POST/PATCH /login.
type envelope struct {
	Status string        `json:"status"`
	Meta   *envelopeMeta `json:"Meta"`
	Data   *envelopeData `json:"Data"`
}

type envelopeMeta struct {
	Msg string `json:"msg"`
}

type envelopeData struct {
	ExpiresAt flexTime `json:"expiresAt"`
	Token     string   `json:"token"`
}

// decodeEnvelope parses a success body. Invalid JSON is an error; valid
// JSON that is not an envelope object yields a nil envelope.
func decodeEnvelope(body []byte) (*envelope, error) {
	if !json.Valid(body) {
		var v any
		return nil, json.Unmarshal(body, &v)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, nil
	}
	return &env, nil
}

// metaMessage returns Meta.msg or the empty string.
func (e *envelope) metaMessage() string {
	if e.Meta == nil {
		return ""
	}
	return strings.TrimSpace(e.Meta.Msg)
}

// errorBody is the failure response: {message, error, statusCode}.
// message may be a string or a list of strings.
type errorBody struct {
	Message    json.RawMessage `json:"message"`
	Error      string          `json:"error"`
	StatusCode int             `json:"statusCode"`
}

func (b *errorBody) text() string {
	if len(b.Message) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Message, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(b.Message, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return strings.Trim(string(b.Message), `"`)
}

// parseServiceError builds a ServiceError from a non-2xx response.
func parseServiceError(status int, body []byte) *ServiceError {
	se := &ServiceError{
		Code:       CodeFromHTTP(status),
		HTTPStatus: status,
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.StatusCode != 0 {
			se.Code = CodeFromHTTP(eb.StatusCode)
		}
		se.ErrorType = eb.Error
		se.Details = eb.text()
	}
	if se.Details == "" {
		se.Details = http.StatusText(status)
	}
	return se
}

// =============================================================================
// FLEXIBLE TIMESTAMPS
// =============================================================================

// flexTime decodes RFC 3339 strings, zone-less ISO strings (taken as UTC),
// and epoch numbers in seconds or milliseconds.
type flexTime struct {
	time.Time
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		for _, layout := range isoLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			t.Time = fromEpoch(n)
			return nil
		}
		return fmt.Errorf("unrecognized timestamp %q", s)
	}

	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("unrecognized timestamp %s", data)
	}
	t.Time = fromEpoch(n)
	return nil
}

func fromEpoch(n float64) time.Time {
	if n >= epochMillisThreshold {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}
