package dag

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/modelops/internal/fault"
)

// TaskError reports a task that failed on every attempt.
//
// TaskError includes structured fields for diagnostics. Err is the cause of
// the final attempt, unwrapped, so callers can record the task's own message.
type TaskError struct {
	// DAG is the name of the graph being executed.
	DAG string

	// Task is the failing task.
	Task string

	// Attempts is the number of attempts made (retries + 1).
	Attempts int

	// Elapsed is the wall-clock duration of the final attempt.
	Elapsed time.Duration

	// TimedOut is true when the final attempt returned successfully but
	// exceeded the task timeout.
	TimedOut bool

	// Err is the final attempt's error.
	Err error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: task %q failed after %d attempt(s) (dag=%s): %v",
		fault.TaskFailure, e.Task, e.Attempts, e.DAG, e.Err)
}

// Unwrap returns the final attempt's error.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// FaultKind marks task errors as TaskFailure.
func (e *TaskError) FaultKind() fault.Kind {
	return fault.TaskFailure
}

// TimeoutError is the cause recorded when an attempt finished but ran longer
// than its timeout. The attempt is never interrupted; it is only judged after
// it returns.
type TimeoutError struct {
	Task    string
	Timeout time.Duration
	Took    time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s exceeded timeout %s (took %.2fs)", e.Task, e.Timeout, e.Took.Seconds())
}

// PanicError is the cause recorded when a task panics.
type PanicError struct {
	Task  string
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

func configErrorf(dag, format string, args ...any) error {
	return fault.Newf(fault.ConfigError, "dag.new", format, args...).With("dag", dag)
}

func cycleError(dag string, path []string) error {
	return fault.Newf(fault.ConfigError, "dag.new", "cycle detected in DAG definition: %s", strings.Join(path, " -> ")).
		With("dag", dag)
}
