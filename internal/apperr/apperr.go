// Package apperr classifies service errors so callers (the HTTP layer in
// particular) can map them to an outcome without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind partitions service failures by how the caller should react.
type Kind int

const (
	// KindValidation marks malformed or out-of-range input. The caller can
	// recover by resubmitting corrected input.
	KindValidation Kind = iota + 1
	// KindNotFound marks a referenced document or annotation that does not exist.
	KindNotFound
	// KindInvalidOperation marks an update that touches fields belonging to
	// the other annotation variant. The stored record is left untouched.
	KindInvalidOperation
	// KindTooLarge marks an upload exceeding the configured size limit.
	KindTooLarge
)

// Error is a classified service error.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Validationf returns a KindValidation error with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf returns a KindNotFound error with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// InvalidOperationf returns a KindInvalidOperation error with a formatted message.
func InvalidOperationf(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidOperation, Msg: fmt.Sprintf(format, args...)}
}

// TooLargef returns a KindTooLarge error with a formatted message.
func TooLargef(format string, args ...interface{}) error {
	return &Error{Kind: KindTooLarge, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, unwrapping as needed, or 0 when err carries
// no classification (treated as an internal error by the HTTP layer).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
