// Package apperr defines the error kinds every inventory and household
// operation reports. Callers branch on the kind with errors.Is against the
// sentinels, or with KindOf.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation       Kind = "validation"
	KindPositionConflict Kind = "position_conflict"
	KindNotAuthenticated Kind = "not_authenticated"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindTransport        Kind = "transport"
)

// Error is a classified failure with a message fit for an end user.
type Error struct {
	Kind     Kind
	Message  string
	Position int
	Err      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels: an Error without a message matches any Error of the
// same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrPositionConflict = &Error{Kind: KindPositionConflict}
	ErrNotAuthenticated = &Error{Kind: KindNotAuthenticated}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrTransport        = &Error{Kind: KindTransport}
)

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func PositionConflict(position int) error {
	return &Error{
		Kind:     KindPositionConflict,
		Message:  fmt.Sprintf("Position %d is already in use", position),
		Position: position,
	}
}

func NotAuthenticated() error {
	return &Error{Kind: KindNotAuthenticated, Message: "not signed in"}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// New builds an Error of an arbitrary kind, used when a kind travels inside a
// procedure result rather than as an error value.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Transport wraps a store or network failure.
func Transport(err error) error {
	return &Error{Kind: KindTransport, Message: "store unavailable", Err: err}
}

// Normalize returns err unchanged when it is already classified and wraps it
// as a transport failure otherwise. A nil err stays nil.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Transport(err)
}

// KindOf returns the kind of err, or KindTransport for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// Message returns the user-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "store unavailable"
}
