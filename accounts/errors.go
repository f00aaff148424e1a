package accounts

import (
	"errors"
	"fmt"
)

// Class buckets every remote account failure into the categories the
// orchestrator acts on. Classification happens once, at this boundary, so the
// saga never has to guess what a failure meant.
type Class string

const (
	// ClassBusinessDenial is a definitive "no" from the account service
	// (insufficient funds, unknown account, blocked card). Never retried.
	ClassBusinessDenial Class = "business_denial"
	// ClassTransient covers timeouts, connection failures and 5xx responses.
	// Safe to retry because every call carries the transfer's idempotency key.
	ClassTransient Class = "transient"
	// ClassUnavailable means the breaker is open or retries are exhausted.
	ClassUnavailable Class = "unavailable"
)

type Error struct {
	Class   Class
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("account service: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("account service: %s", e.Message)
}

func BusinessDenial(code, message string) *Error {
	return &Error{Class: ClassBusinessDenial, Code: code, Message: message}
}

func Transient(code, message string) *Error {
	return &Error{Class: ClassTransient, Code: code, Message: message}
}

func Unavailable(code, message string) *Error {
	return &Error{Class: ClassUnavailable, Code: code, Message: message}
}

// ClassOf returns the classification of err. Errors that did not come through
// the client boundary (raw network failures, context deadlines) are treated
// as transient.
func ClassOf(err error) Class {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Class
	}
	return ClassTransient
}

func IsBusinessDenial(err error) bool { return err != nil && ClassOf(err) == ClassBusinessDenial }
func IsTransient(err error) bool      { return err != nil && ClassOf(err) == ClassTransient }
func IsUnavailable(err error) bool    { return err != nil && ClassOf(err) == ClassUnavailable }

// Reason extracts a short machine-readable failure reason for persisting on a
// transfer. Falls back to the raw error text.
func Reason(err error) string {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		if clientErr.Code != "" {
			return clientErr.Code
		}
		return string(clientErr.Class)
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
