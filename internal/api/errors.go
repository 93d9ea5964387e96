package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed call.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindValidation   Kind = "validation"
	KindServer       Kind = "server_error"
	KindNetwork      Kind = "network_error"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrServer       = errors.New("server error")
	ErrNetwork      = errors.New("network error")
)

var kindSentinels = map[Kind]error{
	KindUnauthorized: ErrUnauthorized,
	KindForbidden:    ErrForbidden,
	KindNotFound:     ErrNotFound,
	KindConflict:     ErrConflict,
	KindValidation:   ErrValidation,
	KindServer:       ErrServer,
	KindNetwork:      ErrNetwork,
}

const (
	transportMessage = "Unable to reach the server. Check your connection and try again."
	fallbackMessage  = "Something went wrong. Please try again."
)

// Error is the typed failure of a gateway call or a local pre-check.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// Payload is the raw response body, if any.
	Payload json.RawMessage
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Validation returns a local validation failure.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a local not-found failure.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Message derives the single user-facing message for err: the structured server
// message when there is one, a transport message for network failures, and a
// generic fallback otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.Kind == KindNetwork {
			return transportMessage
		}
	}
	return fallbackMessage
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusTooManyRequests, status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// serverMessage pulls a human readable message out of an error body. The API
// uses either {"message": "..."} or {"error": "..."}; plain-text bodies are
// returned trimmed.
func serverMessage(body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		return envelope.Error
	}
	if body[0] == '{' || body[0] == '[' || body[0] == '<' {
		return ""
	}
	return string(body)
}

func newStatusError(status int, body []byte) *Error {
	e := &Error{
		Kind:    kindForStatus(status),
		Status:  status,
		Message: serverMessage(body),
	}
	if json.Valid(body) {
		e.Payload = json.RawMessage(body)
	}
	return e
}
