package domain

import "errors"

// Error taxonomy shared by services and the API error mapper.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("too many requests")
)

// Validation wraps msg so that errors.Is(err, ErrValidation) holds.
func Validation(msg string) error {
	return &wrapped{kind: ErrValidation, msg: msg}
}

// Forbidden wraps msg so that errors.Is(err, ErrForbidden) holds.
func Forbidden(msg string) error {
	return &wrapped{kind: ErrForbidden, msg: msg}
}

// NotFound wraps msg so that errors.Is(err, ErrNotFound) holds.
func NotFound(msg string) error {
	return &wrapped{kind: ErrNotFound, msg: msg}
}

// Conflict wraps msg so that errors.Is(err, ErrConflict) holds.
func Conflict(msg string) error {
	return &wrapped{kind: ErrConflict, msg: msg}
}

// Unauthorized wraps msg so that errors.Is(err, ErrUnauthorized) holds.
func Unauthorized(msg string) error {
	return &wrapped{kind: ErrUnauthorized, msg: msg}
}

type wrapped struct {
	kind error
	msg  string
}

func (e *wrapped) Error() string { return e.msg }

func (e *wrapped) Unwrap() error { return e.kind }
