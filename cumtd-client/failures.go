package cumtd_client

import (
	"github.com/pkg/errors"
)

// Upstream failures are tagged so callers can branch on kind without
// string matching: an auth failure is fatal until the user reconfigures,
// while network and malformed failures are retried on the next tick.

type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "upstream rejected API key: " + e.Message
}

type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "upstream request failed: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return "upstream response malformed: " + e.Err.Error()
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

func IsMalformed(err error) bool {
	var malErr *MalformedError
	return errors.As(err, &malErr)
}

// FailureKind names the failure category for diagnostics; it returns the
// empty string for nil or untagged errors.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsAuth(err):
		return "auth"
	case IsMalformed(err):
		return "malformed"
	case IsNetwork(err):
		return "network"
	default:
		return "unknown"
	}
}
