package authapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
)

// ErrorKind classifies a failed Auth Service call.
type ErrorKind int

const (
	// KindNetwork covers transport failures, timeouts and 5xx responses.
	KindNetwork ErrorKind = iota
	// KindRejected covers bad credentials and invalid or expired tokens.
	KindRejected
	// KindValidation covers malformed payloads, locally or on the server.
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRejected:
		return "rejected"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindRejected:
		return sesserrors.ErrRejected
	case KindValidation:
		return sesserrors.ErrValidation
	default:
		return sesserrors.ErrNetwork
	}
}

// Error is returned by every Client method on failure.
// It matches ErrNetwork, ErrRejected or ErrValidation with errors.Is.
type Error struct {
	Kind   ErrorKind
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

func validationError(detail string) *Error {
	return &Error{Kind: KindValidation, Detail: detail}
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindRejected
	case status >= 500:
		return KindNetwork
	default:
		return KindValidation
	}
}

// errorFromResponse builds an Error from a non-2xx body. FastAPI sends
// detail either as a string or as a list of {loc, msg, type} objects.
func errorFromResponse(status int, body []byte) *Error {
	apiErr := &Error{Kind: kindForStatus(status), Status: status}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return apiErr
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		apiErr.Detail = text
		return apiErr
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		apiErr.Detail = strings.Join(msgs, "; ")
	}
	return apiErr
}

// DetailOf returns the server-provided detail of err, if any.
func DetailOf(err error) string {
	var apiErr *Error
	if sesserrors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}
