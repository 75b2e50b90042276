package utils

import (
	"fmt"
	"strings"
)

// AppError tags an underlying error with the operation that failed.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{e.Op, e.Msg} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// UserFacing renders a failure line for chat surfaces with the cause bounded
// to limit runes.
func UserFacing(prefix string, cause string, limit int) string {
	if cause == "" {
		cause = "unknown error"
	}
	return fmt.Sprintf("❌ %s: %s", prefix, Truncate(cause, limit))
}
