package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joescharf/reviewpipe/internal/models"
)

// ChangeSetProvider fetches the change under review.
type ChangeSetProvider interface {
	Fetch(ctx context.Context, ref models.ChangeRef) (*models.ChangeSet, error)
}

// Notifier delivers a workflow notification. Errors are recorded, never fatal.
type Notifier interface {
	Notify(ctx context.Context, event models.NotificationEvent, msg models.Message) error
}

// Stage node names.
const (
	NodeDetect     = "detect"
	NodeAnalyze    = "analyze"
	NodeCoordinate = "coordinate"
	NodeDecide     = "decide"
	NodeReport     = "report"
	NodeError      = "error"
)

// Config wires a Workflow.
type Config struct {
	Provider   ChangeSetProvider
	Tasks      []Task
	Notifier   Notifier
	Summarizer Summarizer
	Thresholds Thresholds

	// TaskTimeout is the forced-completion deadline per task. Zero means
	// DefaultTaskTimeout; a negative value disables forced completion.
	TaskTimeout time.Duration
	MaxParallel int
	Logger      Logger
}

// Workflow runs reviews: detect, parallel analysis, coordinate, decide, report.
type Workflow struct {
	cfg        Config
	log        Logger
	dispatcher *Dispatcher
	graph      *Graph
}

// NewWorkflow validates cfg and builds the stage graph.
func NewWorkflow(cfg Config) (*Workflow, error) {
	if cfg.Provider == nil {
		return nil, errors.New("workflow requires a change set provider")
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	log := cfg.Logger
	if log == nil {
		log = NopLogger{}
	}

	timeout := cfg.TaskTimeout
	switch {
	case timeout == 0:
		timeout = DefaultTaskTimeout
	case timeout < 0:
		timeout = 0
	}
	disp, err := NewDispatcher(cfg.Tasks,
		WithTaskTimeout(timeout),
		WithMaxParallel(cfg.MaxParallel),
		WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	w := &Workflow{cfg: cfg, log: log, dispatcher: disp}
	if w.graph, err = w.buildGraph(); err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	return w, nil
}

func (w *Workflow) buildGraph() (*Graph, error) {
	g := NewGraph(w.log)
	nodes := []struct {
		name string
		fn   Node
	}{
		{NodeDetect, w.detect},
		{NodeAnalyze, w.analyze},
		{NodeCoordinate, w.coordinate},
		{NodeDecide, w.decide},
		{NodeReport, w.report},
		{NodeError, w.fail},
	}
	for _, n := range nodes {
		if err := g.AddNode(n.name, n.fn); err != nil {
			return nil, err
		}
	}

	steps := []func() error{
		func() error { return g.AddEdge(NodeDetect, NodeAnalyze) },
		// Only a state whose gate has opened may proceed to aggregation.
		func() error {
			return g.AddConditionalEdge(NodeAnalyze, func(st *State) string {
				if w.dispatcher.Gate().Open(st) {
					return NodeCoordinate
				}
				return End
			})
		},
		func() error { return g.AddEdge(NodeCoordinate, NodeDecide) },
		func() error { return g.AddEdge(NodeDecide, NodeReport) },
		func() error { return g.AddEdge(NodeReport, End) },
		func() error { return g.AddEdge(NodeError, End) },
		func() error { return g.StartAt(NodeDetect) },
		func() error { return g.OnError(NodeError) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Thresholds returns the thresholds the decision stage applies.
func (w *Workflow) Thresholds() Thresholds {
	return w.cfg.Thresholds
}

// Tasks returns the analyzer tasks dispatched in the parallel stage.
func (w *Workflow) Tasks() []Task {
	return w.dispatcher.Tasks()
}

// Run reviews the change identified by ref and returns its final state. The
// error is non-nil only when the graph itself could not run; a review that
// failed ends in StageError with State.Error set.
func (w *Workflow) Run(ctx context.Context, ref models.ChangeRef) (*State, error) {
	st := NewState(ref)
	w.log.Info("Starting review %s for %s", st.ID, ref)
	if err := w.graph.Run(ctx, st); err != nil {
		return st, fmt.Errorf("run review %s: %w", st.ID, err)
	}
	return st, nil
}
