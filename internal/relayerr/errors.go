package relayerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels matched with errors.Is. Every typed error below reports one of them.
var (
	ErrMalformed    = errors.New("malformed request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBackend      = errors.New("backend error")
)

// MalformedError is a request that is missing or carries ill-formed input.
type MalformedError struct {
	Reason string
}

func Malformed(reason string) *MalformedError {
	return &MalformedError{Reason: reason}
}

func (e *MalformedError) Error() string {
	return "malformed request: " + e.Reason
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

// UnauthorizedError is a well-formed request whose signature did not verify.
type UnauthorizedError struct {
	Reason string
}

func Unauthorized(reason string) *UnauthorizedError {
	return &UnauthorizedError{Reason: reason}
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: " + e.Reason
}

func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

// BackendError wraps a failure from the messaging backend together with the
// operation that produced it (list_topics, create_topic, publish).
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s failed: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// StatusCode maps an error to the HTTP status returned to the caller.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the short error code placed in JSON error responses.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return "BadRequestError"
	case errors.Is(err, ErrUnauthorized):
		return "UnauthorizedError"
	case errors.Is(err, ErrBackend):
		return "BackendError"
	default:
		return "InternalServerError"
	}
}

// PublicMessage returns the caller-safe message for err. Backend and internal
// failures are reported generically; their detail only goes to the log.
func PublicMessage(err error) string {
	var m *MalformedError
	if errors.As(err, &m) {
		return m.Reason
	}
	var u *UnauthorizedError
	if errors.As(err, &u) {
		return u.Reason
	}
	if errors.Is(err, ErrBackend) {
		return "messaging backend unavailable"
	}
	return "internal server error"
}
