package review

import (
	"context"
	"fmt"
)

// End is the pseudo-node that terminates a graph run.
const End = "__end__"

// DefaultMaxSteps bounds the number of node executions in one run.
const DefaultMaxSteps = 32

// Node is one sequential stage. A returned error is recorded in State.Error.
type Node func(ctx context.Context, st *State) error

// Router picks the next node from the current state.
type Router func(st *State) string

// Graph is a small directed stage graph. Routing always checks State.Error
// first: once it is set the run moves to the error node, whatever edges say.
type Graph struct {
	nodes    map[string]Node
	routes   map[string]Router
	start    string
	onError  string
	maxSteps int
	log      Logger
}

// NewGraph returns an empty graph.
func NewGraph(log Logger) *Graph {
	if log == nil {
		log = NopLogger{}
	}
	return &Graph{
		nodes:    make(map[string]Node),
		routes:   make(map[string]Router),
		maxSteps: DefaultMaxSteps,
		log:      log,
	}
}

// AddNode registers a stage.
func (g *Graph) AddNode(name string, fn Node) error {
	if name == "" || name == End {
		return fmt.Errorf("invalid node name %q", name)
	}
	if _, ok := g.nodes[name]; ok {
		return fmt.Errorf("node %q already exists", name)
	}
	g.nodes[name] = fn
	return nil
}

// AddEdge adds an unconditional transition.
func (g *Graph) AddEdge(from, to string) error {
	return g.AddConditionalEdge(from, func(*State) string { return to })
}

// AddConditionalEdge sets the router used after from completes.
func (g *Graph) AddConditionalEdge(from string, route Router) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("unknown node %q", from)
	}
	if _, ok := g.routes[from]; ok {
		return fmt.Errorf("node %q already has an outgoing edge", from)
	}
	g.routes[from] = route
	return nil
}

// StartAt sets the entry node.
func (g *Graph) StartAt(name string) error {
	if _, ok := g.nodes[name]; !ok {
		return fmt.Errorf("unknown node %q", name)
	}
	g.start = name
	return nil
}

// OnError sets the node that receives control whenever State.Error is set.
func (g *Graph) OnError(name string) error {
	if _, ok := g.nodes[name]; !ok {
		return fmt.Errorf("unknown node %q", name)
	}
	g.onError = name
	return nil
}

// Run executes the graph from the entry node until End. The returned error is
// only for graph misuse; stage failures are carried in State.Error.
func (g *Graph) Run(ctx context.Context, st *State) error {
	if g.start == "" {
		return fmt.Errorf("graph has no entry node")
	}

	cur := g.start
	for step := 0; cur != End; step++ {
		if step >= g.maxSteps {
			return fmt.Errorf("graph exceeded %d steps at node %q", g.maxSteps, cur)
		}
		fn, ok := g.nodes[cur]
		if !ok {
			return fmt.Errorf("route to unknown node %q", cur)
		}

		g.log.VerboseLog("stage %s (%s)", cur, st.ID)
		if err := g.exec(ctx, cur, fn, st); err != nil && st.Error == "" {
			st.Fail("%s: %v", cur, err)
		}

		cur = g.next(cur, st)
	}
	return nil
}

func (g *Graph) exec(ctx context.Context, name string, fn Node, st *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return fn(ctx, st)
}

func (g *Graph) next(cur string, st *State) string {
	if st.Error != "" && g.onError != "" && cur != g.onError {
		return g.onError
	}
	route, ok := g.routes[cur]
	if !ok {
		return End
	}
	return route(st)
}
