// Package apperr defines the error kinds shared by the HTTP API and its client.
package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrTimeout      = errors.New("timeout")
	ErrUnauthorized = errors.New("unauthorized")
)

// Kind names used on the wire.
const (
	KindInvalidInput = "invalid_input"
	KindNotFound     = "not_found"
	KindForbidden    = "forbidden"
	KindConflict     = "conflict"
	KindTimeout      = "timeout"
	KindUnauthorized = "unauthorized"
	KindInternal     = "internal"
)

var kinds = []struct {
	err    error
	kind   string
	status int
}{
	{ErrInvalidInput, KindInvalidInput, http.StatusBadRequest},
	{ErrNotFound, KindNotFound, http.StatusNotFound},
	{ErrForbidden, KindForbidden, http.StatusForbidden},
	{ErrConflict, KindConflict, http.StatusConflict},
	{ErrTimeout, KindTimeout, http.StatusGatewayTimeout},
	{ErrUnauthorized, KindUnauthorized, http.StatusUnauthorized},
}

// Invalid wraps ErrInvalidInput with a formatted detail.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the name of the missing entity.
func NotFound(entity string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, entity)
}

// Forbidden wraps ErrForbidden with a reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

// Conflict wraps ErrConflict with a reason.
func Conflict(reason string) error {
	return fmt.Errorf("%w: %s", ErrConflict, reason)
}

// FromContext converts an expired or cancelled context into ErrTimeout.
// It returns nil while ctx is still live.
func FromContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return nil
}

// Kind reports the wire kind of err.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// HTTPStatus maps err to the status code the API responds with.
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Body is the JSON error envelope written by the API.
type Body struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// FromResponse rebuilds an error from a non-2xx API response so callers can
// use errors.Is against the sentinels above.
func FromResponse(status int, body []byte) error {
	var payload Body
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	for _, k := range kinds {
		if payload.Kind == k.kind || (payload.Kind == "" && status == k.status) {
			return &ResponseError{Status: status, Message: msg, kind: k.err}
		}
	}
	return &ResponseError{Status: status, Message: msg}
}

// ResponseError is a failed API call as seen by the client.
type ResponseError struct {
	Status  int
	Message string
	kind    error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *ResponseError) Unwrap() error {
	return e.kind
}
