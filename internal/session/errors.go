package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoServiceBinding means the environment carries no platform service
	// descriptor; the current session, if any, is left untouched.
	ErrNoServiceBinding = errors.New("no iotf-service binding in environment")
	// ErrUninitialized means no session has been established yet.
	ErrUninitialized = errors.New("session is not initialized")
)

// OrgParseError reports an API key username the org id cannot be taken from.
// Usernames look like "a-<org>-<suffix>".
type OrgParseError struct {
	Username string
}

func (e *OrgParseError) Error() string {
	return fmt.Sprintf("cannot derive org id from api key %q: expected a-<org>-<suffix>", e.Username)
}

// BindingError reports a service descriptor that is present but unusable.
type BindingError struct {
	Reason string
	Err    error
}

func (e *BindingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service binding: %s: %v", e.Reason, e.Err)
	}
	return "service binding: " + e.Reason
}

func (e *BindingError) Unwrap() error { return e.Err }
