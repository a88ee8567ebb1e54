// Package errors defines the result codes shared by every stage of an update
// and a small structured error type that carries them up the call chain.
package errors

import "errors"

// Code identifies the outcome of an operation phase or engine call.
type Code string

const (
	CodeOK                    Code = "ok"
	CodeUnauthorized          Code = "unauthorized"
	CodeOutOfSpace            Code = "out_of_space"
	CodeFileExists            Code = "file_exists"
	CodeFileMissing           Code = "file_missing"
	CodeFileIntegrityMismatch Code = "file_integrity_mismatch"
	CodeEncodingError         Code = "encoding_error"
	CodeInvalidState          Code = "invalid_state"
	CodeInternalError         Code = "internal_error"

	// Resource and manifest failures are raised outside the operation phases
	// but travel through the same channel.
	CodeResourceUnavailable Code = "resource_unavailable"
	CodeInvalidManifest     Code = "invalid_manifest"
)

// Error represents a structured error with a machine-readable code plus message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// New wraps an error with a code/message.
func New(code Code, msg string, err error) Error {
	return Error{Code: code, Message: msg, Err: err}
}

// Coder is implemented by error types that carry their own code without
// embedding Error, such as manifest schema errors.
type Coder interface {
	ErrorCode() Code
}

// CodeOf walks the error chain and returns the first structured code found.
// A nil error is CodeOK; an error without a code is CodeInternalError.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var structured Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	var coder Coder
	if errors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return CodeInternalError
}

// IsCode reports whether the error (or its unwrap chain) matches the provided code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
