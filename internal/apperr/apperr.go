package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies application errors so transport layers can map them to
// status codes without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindPermission
	KindInfrastructure
)

// Error is the error type used across services and the image pipeline.
// The message of Validation/NotFound/Permission errors is safe to show to
// API clients; Infrastructure messages are not.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

// Message returns the user-facing message without any wrapped cause.
func (e *Error) Message() string { return e.msg }

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Validation reports bad input shape or range. Never retried.
func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

// NotFound reports an absent referenced resource.
func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

// Permission reports that the actor may not act on the resource.
func Permission(format string, args ...interface{}) *Error {
	return newf(KindPermission, format, args...)
}

// Infrastructure wraps a store/blob/dataset failure. These are fatal for the
// current operation and must never be downgraded to a validation result.
func Infrastructure(err error, format string, args ...interface{}) *Error {
	return &Error{kind: KindInfrastructure, msg: fmt.Sprintf(format, args...), err: err}
}

// KindOf extracts the Kind from an error chain, KindUnknown if none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.kind
	}
	return KindUnknown
}

// MessageOf returns the user-facing message of a classified error, or a
// generic fallback for unclassified/infrastructure errors.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.kind != KindInfrastructure {
		return ae.msg
	}
	return "internal server error"
}
