package service

import (
	"errors"
	"fmt"
)

// Code is the stable, machine readable identifier of a failure.  Codes are
// part of the public API; messages are not.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeCapacityExhausted Code = "CAPACITY_EXHAUSTED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeUploadFailed      Code = "UPLOAD_FAILED"
	CodeStoreUnavailable  Code = "STORE_UNAVAILABLE"
)

// Error is the only error type returned by the reservation service.  Field
// names the offending input for validation failures and Err keeps the
// underlying cause for logs.
type Error struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code carried by err, or "" for foreign errors.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func invalid(field, format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func unavailable(err error) *Error {
	return &Error{Code: CodeStoreUnavailable, Message: "reservation store unavailable, retry later", Err: err}
}

var (
	errUnauthorized = &Error{Code: CodeUnauthorized, Message: "administrator credentials required"}
	errExhausted    = &Error{Code: CodeCapacityExhausted, Message: "not enough spots left"}
)
