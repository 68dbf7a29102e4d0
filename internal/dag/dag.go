package dag

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/modelops/internal/clock"
)

// DefaultTimeout applies to tasks that do not set one.
const DefaultTimeout = 120 * time.Second

// Task is a named unit of work over the typed run state S.
type Task[S any] struct {
	// Name uniquely identifies the task within its DAG.
	Name string

	// Deps names the tasks that must complete first.
	Deps []string

	// Retries is the number of extra attempts after the first failure.
	// Attempts are immediate; there is no backoff.
	Retries int

	// Timeout bounds a single attempt's wall-clock duration. It is checked
	// after the attempt returns. Zero means DefaultTimeout.
	Timeout time.Duration

	// Run does the work. It reads and writes the shared state directly.
	Run func(ctx context.Context, state S) error
}

func (t Task[S]) timeout() time.Duration {
	if t.Timeout <= 0 {
		return DefaultTimeout
	}
	return t.Timeout
}

// DAG is a validated, immutable task graph with a fixed execution order.
//
// Safe for concurrent use by multiple Execute calls only if S values are not
// shared between them; the DAG itself holds no per-run state.
type DAG[S any] struct {
	name   string
	tasks  map[string]Task[S]
	order  []Task[S]
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures a DAG.
type Option func(*options)

type options struct {
	clock  clock.Clock
	logger *slog.Logger
}

// WithClock overrides the clock used to measure attempt durations.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New validates tasks and computes the execution order.
//
// Validation fails ConfigError when a task name is empty or repeated, a task
// has no Run function or negative retries, a dependency names an undeclared
// task, or the graph contains a cycle.
func New[S any](name string, tasks []Task[S], opts ...Option) (*DAG[S], error) {
	o := options{clock: clock.System{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	byName := make(map[string]Task[S], len(tasks))
	for _, t := range tasks {
		switch {
		case t.Name == "":
			return nil, configErrorf(name, "task name is required")
		case t.Run == nil:
			return nil, configErrorf(name, "task %s has no run function", t.Name)
		case t.Retries < 0:
			return nil, configErrorf(name, "task %s has negative retries", t.Name)
		}
		if _, dup := byName[t.Name]; dup {
			return nil, configErrorf(name, "duplicate task name %s", t.Name)
		}
		byName[t.Name] = t
	}

	for _, t := range tasks {
		for _, dep := range t.Deps {
			if _, ok := byName[dep]; !ok {
				return nil, configErrorf(name, "task %s depends on unknown task %s", t.Name, dep)
			}
		}
	}

	order, err := topoSort(name, tasks, byName)
	if err != nil {
		return nil, err
	}

	return &DAG[S]{
		name:   name,
		tasks:  byName,
		order:  order,
		clock:  o.clock,
		logger: o.logger,
	}, nil
}

// topoSort is a depth-first post-order walk over declaration order. A node
// met again while still on the walk stack closes a cycle. Ties between ready
// tasks therefore resolve to the first declared.
func topoSort[S any](name string, tasks []Task[S], byName map[string]Task[S]) ([]Task[S], error) {
	visited := make(map[string]bool, len(tasks))
	onStack := make(map[string]bool)
	var stack []string
	order := make([]Task[S], 0, len(tasks))

	var visit func(n string) error
	visit = func(n string) error {
		if onStack[n] {
			start := 0
			for i, s := range stack {
				if s == n {
					start = i
					break
				}
			}
			path := append(append([]string{}, stack[start:]...), n)
			return cycleError(name, path)
		}
		if visited[n] {
			return nil
		}
		onStack[n] = true
		stack = append(stack, n)
		for _, dep := range byName[n].Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		delete(onStack, n)
		visited[n] = true
		order = append(order, byName[n])
		return nil
	}

	for _, t := range tasks {
		if err := visit(t.Name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Name returns the DAG name.
func (d *DAG[S]) Name() string {
	return d.name
}

// TaskNames returns task names in execution order.
func (d *DAG[S]) TaskNames() []string {
	names := make([]string, len(d.order))
	for i, t := range d.order {
		names[i] = t.Name
	}
	return names
}

// Execute runs every task once, in order, on the calling goroutine.
//
// The first task to exhaust its attempts aborts the run with a *TaskError.
// Tasks that already completed are not compensated. Execute does not watch
// ctx for cancellation; it is handed to tasks as-is.
func (d *DAG[S]) Execute(ctx context.Context, state S) error {
	d.logger.Debug("dag started", "dag", d.name, "tasks", len(d.order))
	for _, t := range d.order {
		if err := d.runTask(ctx, t, state); err != nil {
			d.logger.Error("dag aborted", "dag", d.name, "task", t.Name, "error", err)
			return err
		}
	}
	d.logger.Debug("dag finished", "dag", d.name)
	return nil
}

// runTask makes up to Retries+1 attempts without delay.
func (d *DAG[S]) runTask(ctx context.Context, t Task[S], state S) error {
	attempts := t.Retries + 1
	limit := t.timeout()

	var (
		lastErr  error
		elapsed  time.Duration
		timedOut bool
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		start := d.clock.Now()
		err := invoke(ctx, t, state)
		elapsed = d.clock.Now().Sub(start)

		timedOut = false
		if err == nil && elapsed > limit {
			err = &TimeoutError{Task: t.Name, Timeout: limit, Took: elapsed}
			timedOut = true
		}
		if err == nil {
			d.logger.Debug("task succeeded", "dag", d.name, "task", t.Name, "attempt", attempt, "elapsed", elapsed)
			return nil
		}

		lastErr = err
		d.logger.Warn("task attempt failed",
			"dag", d.name, "task", t.Name,
			"attempt", attempt, "max_attempts", attempts,
			"elapsed", elapsed, "error", err)
	}

	return &TaskError{
		DAG:      d.name,
		Task:     t.Name,
		Attempts: attempts,
		Elapsed:  elapsed,
		TimedOut: timedOut,
		Err:      lastErr,
	}
}

// invoke runs one attempt, converting a panic into an error.
func invoke[S any](ctx context.Context, t Task[S], state S) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: t.Name, Value: r}
		}
	}()
	return t.Run(ctx, state)
}
