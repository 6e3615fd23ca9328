package review

import (
	"time"

	"github.com/joescharf/reviewpipe/internal/models"
)

// Field names a mergeable State field.
type Field string

const (
	FieldSecurity       Field = "security_results"
	FieldQuality        Field = "quality_results"
	FieldCoverage       Field = "coverage_results"
	FieldMissingTests   Field = "missing_tests"
	FieldAIReviews      Field = "ai_reviews"
	FieldDocumentation  Field = "documentation_results"
	FieldCompletedTasks Field = "completed_tasks"
	FieldNotifications  Field = "notifications_sent"
	FieldWarnings       Field = "warnings"
)

// MergePolicy says how an update to a field combines with the current value.
type MergePolicy int

const (
	// MergeOverwrite replaces the field. Used for fields with exactly one producer.
	MergeOverwrite MergePolicy = iota
	// MergeUnion adds entries not already present, keeping first-seen order.
	MergeUnion
	// MergeAppend adds every entry in the order the producer emitted them.
	MergeAppend
)

func (p MergePolicy) String() string {
	switch p {
	case MergeOverwrite:
		return "overwrite"
	case MergeUnion:
		return "union"
	case MergeAppend:
		return "append"
	default:
		return "unknown"
	}
}

var policies = map[Field]MergePolicy{
	FieldSecurity:       MergeOverwrite,
	FieldQuality:        MergeOverwrite,
	FieldCoverage:       MergeOverwrite,
	FieldMissingTests:   MergeOverwrite,
	FieldAIReviews:      MergeOverwrite,
	FieldDocumentation:  MergeOverwrite,
	FieldCompletedTasks: MergeUnion,
	FieldNotifications:  MergeAppend,
	FieldWarnings:       MergeAppend,
}

// Policies returns the declared merge policy of every mergeable field.
func Policies() map[Field]MergePolicy {
	out := make(map[Field]MergePolicy, len(policies))
	for f, p := range policies {
		out[f] = p
	}
	return out
}

// Exclusive reports whether f is written by exactly one producer.
func (f Field) Exclusive() bool {
	return policies[f] == MergeOverwrite
}

// Update is a partial state change produced by one analyzer task. A nil slice
// means the field is untouched; a non-nil slice (even empty) is a write.
type Update struct {
	Security      []models.SecurityResult
	Quality       []models.QualityResult
	Coverage      []models.CoverageResult
	MissingTests  []models.MissingTest
	AIReviews     []models.AIReview
	Documentation []models.DocumentationResult

	CompletedTasks []string
	Notifications  []models.Notification
	Warnings       []string
}

// Touched lists the fields this update writes.
func (u Update) Touched() []Field {
	var out []Field
	if u.Security != nil {
		out = append(out, FieldSecurity)
	}
	if u.Quality != nil {
		out = append(out, FieldQuality)
	}
	if u.Coverage != nil {
		out = append(out, FieldCoverage)
	}
	if u.MissingTests != nil {
		out = append(out, FieldMissingTests)
	}
	if u.AIReviews != nil {
		out = append(out, FieldAIReviews)
	}
	if u.Documentation != nil {
		out = append(out, FieldDocumentation)
	}
	if u.CompletedTasks != nil {
		out = append(out, FieldCompletedTasks)
	}
	if u.Notifications != nil {
		out = append(out, FieldNotifications)
	}
	if u.Warnings != nil {
		out = append(out, FieldWarnings)
	}
	return out
}

// without returns a copy of u with field f left untouched.
func (u Update) without(f Field) Update {
	switch f {
	case FieldSecurity:
		u.Security = nil
	case FieldQuality:
		u.Quality = nil
	case FieldCoverage:
		u.Coverage = nil
	case FieldMissingTests:
		u.MissingTests = nil
	case FieldAIReviews:
		u.AIReviews = nil
	case FieldDocumentation:
		u.Documentation = nil
	case FieldCompletedTasks:
		u.CompletedTasks = nil
	case FieldNotifications:
		u.Notifications = nil
	case FieldWarnings:
		u.Warnings = nil
	}
	return u
}

// Apply merges u into s using each field's declared policy. Callers must serialize
// Apply; the Coordinator does so for analyzer updates.
func (s *State) Apply(u Update) {
	if u.Security != nil {
		s.Security = clone(u.Security)
	}
	if u.Quality != nil {
		s.Quality = clone(u.Quality)
	}
	if u.Coverage != nil {
		s.Coverage = clone(u.Coverage)
	}
	if u.MissingTests != nil {
		s.MissingTests = clone(u.MissingTests)
	}
	if u.AIReviews != nil {
		s.AIReviews = clone(u.AIReviews)
	}
	if u.Documentation != nil {
		s.Documentation = clone(u.Documentation)
	}

	if len(u.CompletedTasks) > 0 {
		s.CompletedTasks = union(s.CompletedTasks, u.CompletedTasks)
	}
	s.Notifications = append(s.Notifications, u.Notifications...)
	s.Warnings = append(s.Warnings, u.Warnings...)
	s.UpdatedAt = time.Now()
}

func union(existing, add []string) []string {
	if len(add) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing)+len(add))
	for _, e := range existing {
		seen[e] = true
	}
	for _, a := range add {
		if !seen[a] {
			seen[a] = true
			existing = append(existing, a)
		}
	}
	return existing
}

// Completed returns the update a task emits to mark itself done without results.
func Completed(task string) Update {
	return Update{CompletedTasks: []string{task}}
}
