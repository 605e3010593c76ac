package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that branch on it.
type Kind string

const (
	KindAuthentication  Kind = "AuthenticationError"
	KindValidation      Kind = "ValidationError"
	KindGeneration      Kind = "GenerationError"
	KindAPI             Kind = "ApiError"
	KindNetwork         Kind = "NetworkError"
	KindLocalValidation Kind = "LocalValidationError"
)

type Error struct {
	Kind     Kind
	Status   int
	Endpoint string
	Message  string
	// Detail is the decoded backend "detail" field when present.
	Detail any
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d)", e.Kind, e.Status)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so sentinels like ErrAuthentication work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t == nil {
		return false
	}
	return t.Kind == e.Kind && t.Status == 0 && t.Message == ""
}

func (e *Error) HTTPStatusCode() int { return e.Status }

var (
	ErrAuthentication  = &Error{Kind: KindAuthentication}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrGeneration      = &Error{Kind: KindGeneration}
	ErrAPI             = &Error{Kind: KindAPI}
	ErrNetwork         = &Error{Kind: KindNetwork}
	ErrLocalValidation = &Error{Kind: KindLocalValidation}
)

func New(kind Kind, status int, msg string) *Error {
	return &Error{Kind: kind, Status: status, Message: msg}
}

func Local(msg string) *Error {
	return &Error{Kind: KindLocalValidation, Message: msg}
}

func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Message: "Network error: Could not connect to the server", Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ""
}
