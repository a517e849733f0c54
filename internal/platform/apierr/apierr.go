package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP translation.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindRateLimit     Kind = "rate_limit"
	KindContextLimit  Kind = "context_limit"
	KindEmbedding     Kind = "embedding"
	KindClustering    Kind = "clustering"
	KindPersistence   Kind = "persistence"
	KindQueryTooLong  Kind = "query_too_long"
	KindCancelled     Kind = "cancelled"
	KindUpstream      Kind = "upstream"
)

// Error is the structured error surfaced by the gateways, the tree builder
// and the retrieval engine: {error_kind, error_code, message, cause, context}.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
	Context map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind via sentinel values built with New.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Code != "" && t.Code != e.Code {
		return false
	}
	return true
}

// HTTPStatus maps the taxonomy onto the collaborator-facing status codes.
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}
	switch e.Kind {
	case KindValidation, KindQueryTooLong:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// WithContext attaches (or merges) structured context and returns e.
func (e *Error) WithContext(kv map[string]any) *Error {
	if e == nil || len(kv) == 0 {
		return e
	}
	if e.Context == nil {
		e.Context = make(map[string]any, len(kv))
	}
	for k, v := range kv {
		e.Context[k] = v
	}
	return e
}

// As returns the structured error in the chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// KindOf extracts the taxonomy kind from any error chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return KindUpstream
}

// StatusOf maps any error to an HTTP status, taxonomy-aware.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
