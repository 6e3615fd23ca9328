// Package analyzer holds the review tasks that run in parallel over the files
// of a change set: security scan, lint and complexity, test coverage, AI review
// and documentation coverage.
package analyzer

import (
	"github.com/joescharf/reviewpipe/internal/review"
	"github.com/joescharf/reviewpipe/internal/source"
)

// Completion markers of the standard analyzers.
const (
	NameSecurity      = "security"
	NameQuality       = "quality"
	NameCoverage      = "coverage"
	NameAIReview      = "ai_review"
	NameDocumentation = "documentation"
)

// DefaultCoverageMin is the coverage below which a file is flagged as needing tests.
const DefaultCoverageMin = 80.0

// Config wires the collaborators of the standard analyzers.
type Config struct {
	// Linters maps a language to its linter. Languages without an entry use
	// HeuristicLinter.
	Linters map[source.Language]Linter
	// Reviewer performs AI reviews. Nil means every file gets the fallback review.
	Reviewer    Reviewer
	CoverageMin float64
	Logger      review.Logger
}

// Defaults returns the standard analyzer set in report order.
func Defaults(cfg Config) []review.Task {
	log := cfg.Logger
	if log == nil {
		log = review.NopLogger{}
	}
	return []review.Task{
		&Security{},
		&Quality{Linters: cfg.Linters, Logger: log},
		&Coverage{Min: cfg.CoverageMin},
		&AIReview{Reviewer: cfg.Reviewer, Logger: log},
		&Documentation{},
	}
}
