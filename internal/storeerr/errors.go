// Package storeerr defines the error taxonomy shared by every layer of the store.
//
// All errors that cross a package boundary are *Error values (possibly wrapped
// with fmt.Errorf("...: %w")). Callers classify them with the Is* predicates,
// which use errors.As and therefore see through wrapping.
package storeerr

import (
	"errors"
	"fmt"
)

// Code categorizes store errors.
type Code string

const (
	// CodeConfig covers unregistered types, missing shard-key rules, duplicate
	// registrations and invalid configuration. Fatal at startup, never retried.
	CodeConfig Code = "CONFIG"

	// CodeAmbiguousMatch indicates a payload within tolerance of two distinct rows.
	CodeAmbiguousMatch Code = "AMBIGUOUS_MATCH"

	// CodeConsistency indicates replicated-type identifiers disagree between shards.
	CodeConsistency Code = "CONSISTENCY"

	// CodeNotFound indicates a store or validate targeted a row that does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeUnavailable indicates transient shard failures exhausted their retries.
	CodeUnavailable Code = "UNAVAILABLE"

	// CodeInvalidPayload indicates a payload is missing a key field or has the wrong kind.
	CodeInvalidPayload Code = "INVALID_PAYLOAD"
)

// Error is a classified store error.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Type is the object type involved, if any.
	Type string

	// Shard is the shard index involved, or -1.
	Shard int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Type != "" && e.Shard >= 0:
		msg = fmt.Sprintf("%s (type=%s, shard=%d)", msg, e.Type, e.Shard)
	case e.Type != "":
		msg = fmt.Sprintf("%s (type=%s)", msg, e.Type)
	case e.Shard >= 0:
		msg = fmt.Sprintf("%s (shard=%d)", msg, e.Shard)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Config creates a configuration error.
func Config(format string, args ...any) *Error {
	return &Error{Code: CodeConfig, Message: fmt.Sprintf(format, args...), Shard: -1}
}

// UnknownType creates a configuration error for an unregistered type.
func UnknownType(typ string) *Error {
	return &Error{Code: CodeConfig, Message: "object type is not registered", Type: typ, Shard: -1}
}

// MissingShardKey creates a configuration error for a partitioned type with no rule.
func MissingShardKey(typ string) *Error {
	return &Error{Code: CodeConfig, Message: "no shard-key rule for partitioned type", Type: typ, Shard: -1}
}

// Ambiguous creates an ambiguous-match error listing the conflicting serials.
func Ambiguous(typ string, shard int, serials []int64) *Error {
	return &Error{
		Code:    CodeAmbiguousMatch,
		Message: fmt.Sprintf("payload matches %d stored rows within tolerance %v", len(serials), serials),
		Type:    typ,
		Shard:   shard,
	}
}

// Consistency creates a cross-shard consistency error.
func Consistency(typ string, shard int, format string, args ...any) *Error {
	return &Error{Code: CodeConsistency, Message: fmt.Sprintf(format, args...), Type: typ, Shard: shard}
}

// NotFound creates a not-found error for a serial.
func NotFound(typ string, shard int, serial int64) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("no row with serial %d", serial), Type: typ, Shard: shard}
}

// Unavailable wraps the last transient failure once retries are exhausted.
func Unavailable(shard int, attempts int, err error) *Error {
	return &Error{
		Code:    CodeUnavailable,
		Message: fmt.Sprintf("shard unavailable after %d attempts", attempts),
		Shard:   shard,
		Err:     err,
	}
}

// InvalidPayload creates a payload validation error.
func InvalidPayload(typ string, format string, args ...any) *Error {
	return &Error{Code: CodeInvalidPayload, Message: fmt.Sprintf(format, args...), Type: typ, Shard: -1}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return CodeOf(err) == CodeConfig }

// IsAmbiguous reports whether err is an ambiguous-match error.
func IsAmbiguous(err error) bool { return CodeOf(err) == CodeAmbiguousMatch }

// IsConsistency reports whether err is a cross-shard consistency error.
func IsConsistency(err error) bool { return CodeOf(err) == CodeConsistency }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsUnavailable reports whether err is a store-unavailable error.
func IsUnavailable(err error) bool { return CodeOf(err) == CodeUnavailable }

// IsInvalidPayload reports whether err is a payload validation error.
func IsInvalidPayload(err error) bool { return CodeOf(err) == CodeInvalidPayload }
