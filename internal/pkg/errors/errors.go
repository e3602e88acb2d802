package errors

import "errors"

var (
	// ErrNotFound covers both a missing thread and a thread owned by someone else.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStorage marks persistence failures.
	ErrStorage = errors.New("storage failure")
	// ErrGatewayUnavailable marks assistant gateway failures and timeouts.
	ErrGatewayUnavailable = errors.New("assistant gateway unavailable")

	ErrCredentialMissing = &credentialError{msg: "token is missing"}
	ErrCredentialInvalid = &credentialError{msg: "token is invalid"}
)

// credentialError is both its own sentinel and an ErrUnauthorized.
type credentialError struct {
	msg string
}

func (e *credentialError) Error() string        { return e.msg }
func (e *credentialError) Is(target error) bool { return target == ErrUnauthorized }
