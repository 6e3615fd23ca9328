package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTaskTimeout bounds how long the dispatcher waits for one task before
// merging its default result in its place.
const DefaultTaskTimeout = 5 * time.Minute

// ErrAlreadyDispatched is returned when the same State is dispatched twice.
var ErrAlreadyDispatched = errors.New("review state already dispatched")

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTaskTimeout sets the forced-completion deadline for each task. Zero disables
// forced completion: a task that never returns then stalls the gate until the
// caller's context is done.
func WithTaskTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.taskTimeout = d }
}

// WithMaxParallel caps how many tasks run at once. Values <= 0 mean no limit.
func WithMaxParallel(n int) DispatcherOption {
	return func(disp *Dispatcher) { disp.maxParallel = n }
}

// WithLogger sets the progress logger.
func WithLogger(l Logger) DispatcherOption {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.log = l
		}
	}
}

// WithMergeHook registers a callback invoked after every merge, still inside the
// serialized section.
func WithMergeHook(fn func(task string, res MergeResult)) DispatcherOption {
	return func(disp *Dispatcher) { disp.onMerge = fn }
}

// Dispatcher launches every registered task concurrently against one snapshot and
// merges their updates one at a time.
type Dispatcher struct {
	tasks       []Task
	gate        Gate
	taskTimeout time.Duration
	maxParallel int
	log         Logger
	onMerge     func(task string, res MergeResult)
}

// dispatchMu guards State.dispatched across dispatchers.
var dispatchMu sync.Mutex

// NewDispatcher validates the task set: names must be unique and non-empty, and
// no two tasks may own the same slot.
func NewDispatcher(tasks []Task, opts ...DispatcherOption) (*Dispatcher, error) {
	if len(tasks) == 0 {
		return nil, errors.New("dispatcher requires at least one task")
	}

	names := make(map[string]bool, len(tasks))
	owners := make(map[Field]string)
	for _, t := range tasks {
		name := t.Name()
		if name == "" {
			return nil, errors.New("task with empty name")
		}
		if names[name] {
			return nil, fmt.Errorf("duplicate task %q", name)
		}
		names[name] = true

		for _, f := range t.Owns() {
			if !f.Exclusive() {
				return nil, fmt.Errorf("task %q cannot own additive field %s", name, f)
			}
			if prev, ok := owners[f]; ok {
				return nil, fmt.Errorf("field %s owned by both %q and %q", f, prev, name)
			}
			owners[f] = name
		}
	}

	d := &Dispatcher{
		tasks:       append([]Task(nil), tasks...),
		gate:        NewGate(TaskNames(tasks)),
		taskTimeout: DefaultTaskTimeout,
		log:         NopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Tasks returns the registered tasks.
func (d *Dispatcher) Tasks() []Task {
	return append([]Task(nil), d.tasks...)
}

// Gate returns the completion gate for the registered tasks.
func (d *Dispatcher) Gate() Gate {
	return d.gate
}

// Dispatch runs all tasks and returns once the gate has opened. Every merge
// re-checks the gate; branches that find it closed simply end. If ctx is done
// first, the coordinator is sealed so no later merge touches st, and the
// context's error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, st *State) error {
	dispatchMu.Lock()
	if st.dispatched {
		dispatchMu.Unlock()
		return ErrAlreadyDispatched
	}
	st.dispatched = true
	dispatchMu.Unlock()

	base := st.Snapshot()
	coord := NewCoordinator(st, d.gate)
	opened := make(chan struct{})
	finished := make(chan struct{})

	var g errgroup.Group
	if d.maxParallel > 0 {
		g.SetLimit(d.maxParallel)
	}

	go func() {
		defer close(finished)
		for _, t := range d.tasks {
			snap := base.Snapshot()
			g.Go(func() error {
				u := d.restrict(t, d.run(ctx, t, snap))
				res := coord.Merge(u)
				if d.onMerge != nil {
					d.onMerge(t.Name(), res)
				}
				if res.Discarded {
					d.log.VerboseLog("%s: reported after cancellation, result discarded", t.Name())
					return nil
				}
				if res.Fired {
					d.log.VerboseLog("%s: all %d tasks reported", t.Name(), len(d.tasks))
					close(opened)
					return nil
				}
				d.log.VerboseLog("%s: merged, waiting for %s", t.Name(), strings.Join(res.Missing, ", "))
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-opened:
		return nil
	case <-ctx.Done():
		if coord.Seal() {
			return nil
		}
		return fmt.Errorf("parallel analysis: %w", ctx.Err())
	case <-finished:
		if coord.Fired() {
			return nil
		}
		return fmt.Errorf("parallel analysis: gate never opened, missing %s",
			strings.Join(d.gate.Missing(st), ", "))
	}
}

// run executes one task, substituting its default result on panic or deadline.
func (d *Dispatcher) run(ctx context.Context, t Task, snap State) Update {
	if d.taskTimeout <= 0 {
		return d.call(ctx, t, snap)
	}

	tctx, cancel := context.WithTimeout(ctx, d.taskTimeout)
	defer cancel()

	done := make(chan Update, 1)
	go func() { done <- d.call(tctx, t, snap.Snapshot()) }()

	select {
	case u := <-done:
		return u
	case <-tctx.Done():
		msg := fmt.Sprintf("task %s did not report within %s; default result merged", t.Name(), d.taskTimeout)
		d.log.Warning("%s", msg)
		u := fallback(t, snap)
		u.Warnings = append(u.Warnings, msg)
		return u
	}
}

func (d *Dispatcher) call(ctx context.Context, t Task, snap State) (u Update) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("task %s panicked: %v", t.Name(), r)
			d.log.Warning("%s", msg)
			u = fallback(t, snap)
			u.Warnings = append(u.Warnings, msg)
		}
	}()
	return t.Run(ctx, snap)
}

// restrict drops writes outside the task's declared slots and pins the
// completion marker to the task's own name.
func (d *Dispatcher) restrict(t Task, u Update) Update {
	owned := make(map[Field]bool)
	for _, f := range t.Owns() {
		owned[f] = true
	}

	for _, f := range u.Touched() {
		if !f.Exclusive() || owned[f] {
			continue
		}
		msg := fmt.Sprintf("task %s wrote %s which it does not own; write dropped", t.Name(), f)
		d.log.Warning("%s", msg)
		u = u.without(f)
		u.Warnings = append(u.Warnings, msg)
	}

	for _, name := range u.CompletedTasks {
		if name != t.Name() {
			msg := fmt.Sprintf("task %s reported completion of %s; marker dropped", t.Name(), name)
			d.log.Warning("%s", msg)
			u.Warnings = append(u.Warnings, msg)
		}
	}
	u.CompletedTasks = []string{t.Name()}
	return u
}
