package apperr

import (
	"errors"
	"fmt"
)

// Code classifies a failure so callers can decide whether to retry.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

// Definition is a coded error with a default message and an optional cause.
type Definition struct {
	Code    Code
	Message string
	Err     error
}

func (d *Definition) Error() string {
	if d.Err != nil {
		return d.Message + ": " + d.Err.Error()
	}
	return d.Message
}

func (d *Definition) Unwrap() error { return d.Err }

// Is matches any Definition carrying the same code.
func (d *Definition) Is(target error) bool {
	var t *Definition
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == d.Code
}

var (
	ErrNotFound           = &Definition{Code: CodeNotFound, Message: "not found"}
	ErrConflict           = &Definition{Code: CodeConflict, Message: "concurrent update, try again"}
	ErrInvalidInput       = &Definition{Code: CodeInvalidInput, Message: "invalid input"}
	ErrStorageUnavailable = &Definition{Code: CodeStorageUnavailable, Message: "storage unavailable"}
)

// Invalid returns an InvalidInput error carrying a specific reason.
func Invalid(format string, args ...any) error {
	return &Definition{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a transport or durability failure.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return &Definition{Code: CodeStorageUnavailable, Message: ErrStorageUnavailable.Message, Err: err}
}

// Conflict wraps a lost optimistic write.
func Conflict(err error) error {
	return &Definition{Code: CodeConflict, Message: ErrConflict.Message, Err: err}
}

// CodeOf returns the code of the first Definition in err's chain, or "".
func CodeOf(err error) Code {
	var d *Definition
	if errors.As(err, &d) {
		return d.Code
	}
	return ""
}

// Retryable reports whether the whole logical operation may be safely retried.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeConflict, CodeStorageUnavailable:
		return true
	}
	return false
}
