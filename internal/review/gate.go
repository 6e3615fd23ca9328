package review

import (
	"sync"
)

// Gate decides whether every expected task has reported.
type Gate struct {
	expected []string
}

// NewGate creates a gate waiting on the given completion markers.
func NewGate(expected []string) Gate {
	return Gate{expected: append([]string(nil), expected...)}
}

// Expected returns the markers the gate waits on.
func (g Gate) Expected() []string {
	return append([]string(nil), g.expected...)
}

// Open reports whether CompletedTasks is a superset of the expected markers.
func (g Gate) Open(st *State) bool {
	return len(g.Missing(st)) == 0
}

// Missing returns the expected markers not yet present, in declaration order.
func (g Gate) Missing(st *State) []string {
	done := make(map[string]bool, len(st.CompletedTasks))
	for _, t := range st.CompletedTasks {
		done[t] = true
	}
	var missing []string
	for _, e := range g.expected {
		if !done[e] {
			missing = append(missing, e)
		}
	}
	return missing
}

// Coordinator serializes merges into one State and re-checks the gate after each.
// Exactly one Merge call observes the gate going from closed to open.
type Coordinator struct {
	mu     sync.Mutex
	state  *State
	gate   Gate
	fired  bool
	sealed bool
}

// NewCoordinator wraps st. If the gate is already open when the coordinator is
// created (no expected tasks), the first Merge fires.
func NewCoordinator(st *State, gate Gate) *Coordinator {
	return &Coordinator{state: st, gate: gate}
}

// MergeResult describes what one merge observed.
type MergeResult struct {
	// Fired is true only for the merge that opened the gate.
	Fired bool
	// Missing lists tasks still pending after this merge.
	Missing []string
	// Discarded is true when the coordinator was sealed and u was dropped.
	Discarded bool
}

// Merge applies u and re-evaluates the gate. A result with Fired false is a
// halted branch: more results are pending, which is not an error.
func (c *Coordinator) Merge(u Update) MergeResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Once sealed the state belongs to the caller again; do not read it.
	if c.sealed {
		return MergeResult{Discarded: true}
	}
	c.state.Apply(u)
	missing := c.gate.Missing(c.state)
	if len(missing) > 0 || c.fired {
		return MergeResult{Missing: missing}
	}
	c.fired = true
	return MergeResult{Fired: true}
}

// Seal discards every later merge and reports whether the gate had already
// opened.
func (c *Coordinator) Seal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	return c.fired
}

// Fired reports whether the gate has opened.
func (c *Coordinator) Fired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}
