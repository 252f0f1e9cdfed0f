// Package apierr enumerates the error taxonomy from the design's error
// handling section. The connection handler reports these errors to clients
// as error or session.error frames carrying the error's Message.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of client-visible reporting
// and transport lifecycle (Unauthorized closes the connection; the rest
// report and continue).
type Kind string

const (
	InvalidInput  Kind = "invalid_input"
	NotFound      Kind = "not_found"
	QuotaExceeded Kind = "quota_exceeded"
	Unauthorized  Kind = "unauthorized"
	RateLimited   Kind = "rate_limited"
	TransientStore Kind = "transient_store"
	Fatal         Kind = "fatal"
)

// Error is a typed error carrying a Kind alongside a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to TransientStore for anything unrecognized so callers never silently
// drop an error's taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return TransientStore
}
