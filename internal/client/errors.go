package client

import "fmt"

// AuthError covers 401 responses and missing sessions.
type AuthError struct {
	Code string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Code
}

// ValidationError carries the server's field-level rejection.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Detail)
	}
	return "validation failed: " + e.Detail
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// NetworkError wraps transport failures so callers can distinguish "server
// said no" from "server unreachable".
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
