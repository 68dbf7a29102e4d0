// Package fault defines the error kinds returned by every public operation
// of the registry, router, executor, scheduler and job store.
//
// Callers branch on the kind with Is or KindOf instead of matching strings:
//
//	version, err := reg.ResolveReference(ref)
//	if fault.Is(err, fault.NotFound) {
//		// fall back explicitly
//	}
package fault

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind categorizes an error.
type Kind string

const (
	// NotFound indicates an unknown version, alias, job or DAG.
	NotFound Kind = "NOT_FOUND"

	// AlreadyExists indicates an id collision on creation.
	AlreadyExists Kind = "ALREADY_EXISTS"

	// ArtifactMissing indicates a registry entry whose files are gone.
	ArtifactMissing Kind = "ARTIFACT_MISSING"

	// InsufficientHistory indicates a rollback beyond recorded alias history.
	InsufficientHistory Kind = "INSUFFICIENT_HISTORY"

	// ConfigError indicates an invalid DAG or configuration. Never retried.
	ConfigError Kind = "CONFIG_ERROR"

	// TaskFailure indicates a task raised or exceeded its timeout on every attempt.
	TaskFailure Kind = "TASK_FAILURE"

	// InvalidArgument indicates a malformed argument (bad alias name, steps < 1).
	InvalidArgument Kind = "INVALID_ARGUMENT"

	// InvalidTransition indicates a job status change that would move backwards.
	InvalidTransition Kind = "INVALID_TRANSITION"

	// Unsupported indicates an artifact format this build cannot load.
	Unsupported Kind = "UNSUPPORTED"
)

// Error is the structured error carried across package boundaries.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op names the failing operation, e.g. "registry.rollback".
	Op string

	// Message is a human-readable description.
	Message string

	// Details holds diagnostic context such as alias, version or task name.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+e.Details[k])
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// FaultKind reports the error category.
func (e *Error) FaultKind() Kind {
	return e.Kind
}

// Kinded is implemented by errors that carry a Kind. Packages with richer
// error types (such as dag.TaskError) implement it to join the taxonomy.
type Kinded interface {
	error
	FaultKind() Kind
}

// New creates an Error without an underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an existing cause.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// With returns the error with an additional detail set.
func (e *Error) With(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of the first Kinded error in the chain,
// or the empty Kind if there is none.
func KindOf(err error) Kind {
	var k Kinded
	if errors.As(err, &k) {
		return k.FaultKind()
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
