package domain

import (
	"errors"
	"fmt"
)

// Code classifies a failure so transports can report it without inspecting
// the underlying cause.
type Code string

const (
	CodeInvalidMessage   Code = "invalid_message"
	CodeNotAuthenticated Code = "not_authenticated"
	CodeNotAMember       Code = "not_a_member"
	CodePersistence      Code = "persistence_error"
	CodeDelivery         Code = "delivery_failure"
	CodeRateLimited      Code = "rate_limited"
)

// Error is the error type returned across component boundaries.
// Two Errors match under errors.Is when their codes are equal.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors for the domain layer. Compare with errors.Is.
var (
	ErrInvalidMessage   = &Error{Code: CodeInvalidMessage, Message: "invalid message"}
	ErrNotAuthenticated = &Error{Code: CodeNotAuthenticated, Message: "session is not bound to a user"}
	ErrNotAMember       = &Error{Code: CodeNotAMember, Message: "user is not a member of the room"}
	ErrPersistence      = &Error{Code: CodePersistence, Message: "persistence failed"}
	ErrDelivery         = &Error{Code: CodeDelivery, Message: "delivery failed"}
	ErrRateLimited      = &Error{Code: CodeRateLimited, Message: "too many events"}
	ErrNotFound         = errors.New("requested resource not found")
)

// NewError builds an Error with the given code and message.
func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches cause to a new Error of the given code.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// CodeOf reports the code carried by err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
