package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Auth service errors
	ErrNetwork    = errors.New("auth service unreachable")
	ErrRejected   = errors.New("authentication rejected")
	ErrValidation = errors.New("validation failed")

	// Token errors
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrMalformedToken = errors.New("malformed token")

	// Storage errors
	ErrStorage  = errors.New("token storage failure")
	ErrNotFound = errors.New("not found")

	// Session errors
	ErrStaleSession     = errors.New("session generation changed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotInitialized   = errors.New("session not initialized")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
