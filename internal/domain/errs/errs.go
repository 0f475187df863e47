// Package errs defines the pipeline error taxonomy.
//
// Every failure that crosses a component boundary is an *Error carrying a
// Kind. Callers match on KindOf(err) (or errors.Is against the sentinels)
// instead of inspecting messages, so adding a kind is a compile-visible change.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindDatabase
	KindRateLimited
	KindPermissionDenied
	KindNotFound
	KindInvalid
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindDatabase:
		return "database"
	case KindRateLimited:
		return "rate_limited"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindUnknown:
		return "unknown"
	}
	return "unknown"
}

// Sentinel kinds. errors.Is(err, ErrNetwork) holds for any *Error of KindNetwork.
var (
	ErrNetwork          = errors.New("network error")
	ErrDatabase         = errors.New("database error")
	ErrRateLimited      = errors.New("rate limited")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrInvalid          = errors.New("invalid input")
)

// Error is the concrete pipeline error.
type Error struct {
	Kind    Kind
	Op      string         // operation, e.g. "store.insert"
	Code    string         // store error code when known (SQLSTATE)
	Context map[string]any // extra context for DatabaseError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Code != "" {
		fmt.Fprintf(&b, " (code %s)", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return sentinel(e.Kind) == target && target != nil
}

func sentinel(k Kind) error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindDatabase:
		return ErrDatabase
	case KindRateLimited:
		return ErrRateLimited
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindNotFound:
		return ErrNotFound
	case KindInvalid:
		return ErrInvalid
	case KindUnknown:
		return nil
	}
	return nil
}

// KindOf extracts the Kind of err. Nil yields KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the store error code carried by err, if any.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Network wraps a transport failure.
func Network(op string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// Database wraps a store rejection. ctx may be nil.
func Database(op, code string, err error, ctx map[string]any) error {
	return &Error{Kind: KindDatabase, Op: op, Code: code, Err: err, Context: ctx}
}

// RateLimited reports that key exceeded its limiter.
func RateLimited(key string) error {
	return &Error{Kind: KindRateLimited, Op: "ratelimit", Context: map[string]any{"key": key}}
}

// PermissionDenied reports a row-level permission rejection from the store.
func PermissionDenied(op, code string, err error) error {
	return &Error{Kind: KindPermissionDenied, Op: op, Code: code, Err: err}
}

// NotFound reports a missing entity.
func NotFound(op string) error {
	return &Error{Kind: KindNotFound, Op: op}
}

// Invalid reports rejected input.
func Invalid(op, msg string) error {
	return &Error{Kind: KindInvalid, Op: op, Err: errors.New(msg)}
}

// IsPermissionDenied is shorthand for KindOf(err) == KindPermissionDenied.
func IsPermissionDenied(err error) bool { return KindOf(err) == KindPermissionDenied }

// Retryable reports whether a failed read may be retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindPermissionDenied, KindRateLimited, KindInvalid, KindNotFound:
		return false
	case KindNetwork, KindDatabase, KindUnknown:
		return true
	}
	return true
}
