package review

import (
	"context"
)

// Task is one independent analysis run concurrently during the parallel stage.
//
// Run reads the snapshot's Files and, best-effort, other tasks' result slots (they
// may still be empty). It returns an update that writes only the fields in Owns
// plus its own completion marker. Run must not fail past its own boundary: on an
// internal error it returns default-shaped results and its marker anyway.
type Task interface {
	Name() string
	Owns() []Field
	Run(ctx context.Context, snap State) Update
}

// Defaulter is implemented by tasks that can produce a default-shaped result
// without doing any work. The dispatcher uses it when a task panics or misses
// its deadline.
type Defaulter interface {
	Default(snap State) Update
}

// TaskFunc adapts a function to Task.
type TaskFunc struct {
	TaskName string
	Slots    []Field
	Fn       func(ctx context.Context, snap State) Update
}

func (t TaskFunc) Name() string  { return t.TaskName }
func (t TaskFunc) Owns() []Field { return t.Slots }

func (t TaskFunc) Run(ctx context.Context, snap State) Update {
	return t.Fn(ctx, snap)
}

// fallback returns the update merged in place of a task's own result.
func fallback(t Task, snap State) Update {
	var u Update
	if d, ok := t.(Defaulter); ok {
		u = d.Default(snap)
	}
	u.CompletedTasks = []string{t.Name()}
	return u
}

// TaskNames returns the completion markers of tasks, in order.
func TaskNames(tasks []Task) []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name()
	}
	return names
}

// Logger receives progress messages from the workflow. *output.UI satisfies it.
type Logger interface {
	Info(format string, a ...any)
	Warning(format string, a ...any)
	VerboseLog(format string, a ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)       {}
func (NopLogger) Warning(string, ...any)    {}
func (NopLogger) VerboseLog(string, ...any) {}
