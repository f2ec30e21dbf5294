package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/shardstore/internal/object"
	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/storeerr"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Store refused the request (ambiguous match, consistency, unavailable)
	ExitCommandError = 2 // Command error (bad flags, bad payload, bad configuration)
)

// ErrCodeGeneric is reported for errors outside the store's taxonomy.
const ErrCodeGeneric = "ERROR"

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int // ExitFailure or ExitCommandError
	Message string
	Err     error // optional
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output, defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"` // storeerr code, or ERROR
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Shard   *int   `json:"shard,omitempty"`
}

// Success outputs a successful result in the configured format.
// Text output prints data with fmt unless it is a textRenderer.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	if r, ok := data.(textRenderer); ok {
		return r.renderText(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(e CLIError) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &e,
		})
	}
	_, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	return err
}

// Fail reports err and returns the ExitError the command should return.
// Configuration and payload errors exit 2; every other store refusal exits 1.
func (f *OutputFormatter) Fail(message string, err error) error {
	e := CLIError{Code: ErrCodeGeneric, Message: err.Error()}
	code := ExitFailure

	var se *storeerr.Error
	if errors.As(err, &se) {
		e.Code = string(se.Code)
		e.Type = se.Type
		if se.Shard >= 0 {
			shard := se.Shard
			e.Shard = &shard
		}
		if se.Code == storeerr.CodeConfig || se.Code == storeerr.CodeInvalidPayload {
			code = ExitCommandError
		}
	}

	_ = f.Error(e)
	return WrapExitError(code, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

type textRenderer interface {
	renderText(w io.Writer) error
}

// objectList renders one object per line in text mode.
type objectList []*object.Object

func (l objectList) renderText(w io.Writer) error {
	for _, obj := range l {
		body, err := payload.MarshalCanonical(obj.Payload)
		if err != nil {
			return err
		}
		status := "pending"
		if obj.Validated {
			status = "validated"
		}
		if _, err := fmt.Fprintf(w, "%s#%d\tshard=%d\t%s\t%s\t%s\n",
			obj.Type, obj.StoreID, obj.Shard, obj.Provenance, status, body); err != nil {
			return err
		}
	}
	return nil
}
