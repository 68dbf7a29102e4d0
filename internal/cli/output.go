package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/modelops/internal/fault"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A job or batch ran and failed
	ExitCommandError = 2 // Command error (unknown reference, bad flags, missing artifacts, etc.)
)

// Error codes reported in CLI output, one per fault kind.
const (
	ErrCodeGeneric             = "E001" // Generic/unknown error
	ErrCodeNotFound            = "E002" // Unknown version, alias, job or DAG
	ErrCodeAlreadyExists       = "E003" // Id collision
	ErrCodeArtifactMissing     = "E004" // Registered version without files
	ErrCodeInsufficientHistory = "E005" // Rollback beyond alias history
	ErrCodeConfig              = "E006" // Invalid DAG or configuration
	ErrCodeTaskFailure         = "E007" // DAG task failed
	ErrCodeInvalidArgument     = "E008" // Malformed argument
	ErrCodeInvalidTransition   = "E009" // Job status moved backwards
	ErrCodeUnsupported         = "E010" // Unloadable artifact format
)

var kindCodes = map[fault.Kind]string{
	fault.NotFound:            ErrCodeNotFound,
	fault.AlreadyExists:       ErrCodeAlreadyExists,
	fault.ArtifactMissing:     ErrCodeArtifactMissing,
	fault.InsufficientHistory: ErrCodeInsufficientHistory,
	fault.ConfigError:         ErrCodeConfig,
	fault.TaskFailure:         ErrCodeTaskFailure,
	fault.InvalidArgument:     ErrCodeInvalidArgument,
	fault.InvalidTransition:   ErrCodeInvalidTransition,
	fault.Unsupported:         ErrCodeUnsupported,
}

// ErrorCode returns the CLI error code for err's fault kind.
func ErrorCode(err error) string {
	if code, ok := kindCodes[fault.KindOf(err)]; ok {
		return code
	}
	return ErrCodeGeneric
}

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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
	if err == nil {
		return ExitSuccess
	}
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
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
	JobID  string      `json:"job_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "E002", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err through the formatter and converts it to an ExitError.
// Task failures exit 1; every other error is a command error and exits 2.
func (f *OutputFormatter) Fail(err error) error {
	code := ErrorCode(err)

	var details interface{}
	var fe *fault.Error
	if errors.As(err, &fe) && len(fe.Details) > 0 {
		details = fe.Details
	}
	_ = f.Error(code, err.Error(), details)

	exit := ExitCommandError
	if code == ErrCodeTaskFailure {
		exit = ExitFailure
	}
	return WrapExitError(exit, code, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
