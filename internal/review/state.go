package review

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joescharf/reviewpipe/internal/models"
)

// Stage is the workflow position of a review.
type Stage string

const (
	StageStarted          Stage = "started"
	StageDetecting        Stage = "detecting"
	StageParallelAnalysis Stage = "parallel_analysis"
	StageCoordinating     Stage = "coordinating"
	StageDeciding         Stage = "deciding"
	StageReporting        Stage = "reporting"
	StageCompleted        Stage = "completed"
	StageEscalated        Stage = "escalated"
	StageError            Stage = "error"
)

// Terminal reports whether no further transition can happen from s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageEscalated || s == StageError
}

// State is the shared record threaded through one review. Identity fields are set
// by NewState and never change; everything else is mutated by stages and by merges
// of analyzer updates.
type State struct {
	ID        string           `json:"review_id"`
	Ref       models.ChangeRef `json:"ref"`
	CreatedAt time.Time        `json:"created_at"`

	Stage     Stage     `json:"stage"`
	UpdatedAt time.Time `json:"updated_at"`

	Details models.ChangeDetails `json:"details"`
	Files   []models.FileData    `json:"files"`

	Security      []models.SecurityResult      `json:"security_results"`
	Quality       []models.QualityResult       `json:"quality_results"`
	Coverage      []models.CoverageResult      `json:"coverage_results"`
	MissingTests  []models.MissingTest         `json:"missing_tests"`
	AIReviews     []models.AIReview            `json:"ai_reviews"`
	Documentation []models.DocumentationResult `json:"documentation_results"`

	CompletedTasks []string              `json:"completed_tasks"`
	Notifications  []models.Notification `json:"notifications_sent"`
	Warnings       []string              `json:"warnings,omitempty"`

	Summary           *models.Summary `json:"summary,omitempty"`
	HasCriticalIssues bool            `json:"has_critical_issues"`
	CriticalReason    string          `json:"critical_reason"`

	Error string `json:"error,omitempty"`

	dispatched bool
}

// NewState creates the initial state for a review with every result slot empty.
func NewState(ref models.ChangeRef) *State {
	now := time.Now()
	return &State{
		ID:        newReviewID(now),
		Ref:       ref,
		CreatedAt: now,
		Stage:     StageStarted,
		UpdatedAt: now,
	}
}

// newReviewID returns an id of the form REV-20060102-1A2B3C4D.
func newReviewID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("REV-%s-%s", now.Format("20060102"), suffix)
}

// SetStage moves the review to a new stage and touches UpdatedAt.
func (s *State) SetStage(stage Stage) {
	s.Stage = stage
	s.UpdatedAt = time.Now()
}

// Fail records a fatal condition; routing sends the workflow to the error stage next.
func (s *State) Fail(format string, a ...any) {
	s.Error = fmt.Sprintf(format, a...)
	s.UpdatedAt = time.Now()
}

// Snapshot returns a copy whose slices do not alias the receiver's. Analyzer tasks
// only ever see snapshots.
func (s *State) Snapshot() State {
	c := *s
	c.Files = clone(s.Files)
	c.Security = clone(s.Security)
	c.Quality = clone(s.Quality)
	c.Coverage = clone(s.Coverage)
	c.MissingTests = clone(s.MissingTests)
	c.AIReviews = clone(s.AIReviews)
	c.Documentation = clone(s.Documentation)
	c.CompletedTasks = clone(s.CompletedTasks)
	c.Notifications = clone(s.Notifications)
	c.Warnings = clone(s.Warnings)
	if s.Summary != nil {
		sum := *s.Summary
		c.Summary = &sum
	}
	return c
}

func clone[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// HasCompleted reports whether task has contributed its completion marker.
func (s *State) HasCompleted(task string) bool {
	for _, t := range s.CompletedTasks {
		if t == task {
			return true
		}
	}
	return false
}

// String is a one-line progress description used in logs.
func (s *State) String() string {
	return fmt.Sprintf("Review %s: %s - %s (%d tasks completed)", s.ID, s.Ref, s.Stage, len(s.CompletedTasks))
}
