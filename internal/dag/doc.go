// Package dag executes a fixed set of named tasks in dependency order.
//
// A DAG is validated once at construction: every dependency must be declared
// and the graph must be acyclic. The execution order is a depth-first
// post-order over declaration order, so it is deterministic and stable.
//
// Execution is intentionally sequential and single-threaded. Tasks share one
// typed state value S, normally a pointer to a struct owned by the caller, and
// later tasks observe what earlier tasks wrote.
//
// Timeouts are cooperative: an attempt is timed, and if it ran too long it is
// counted as failed after it returns. A task that never returns blocks the run;
// nothing interrupts it.
package dag
