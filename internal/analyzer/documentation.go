package analyzer

import (
	"context"

	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/review"
	"github.com/joescharf/reviewpipe/internal/source"
)

// Documentation measures how many functions, classes and types carry a
// docstring or doc comment.
type Documentation struct{}

func (d *Documentation) Name() string         { return NameDocumentation }
func (d *Documentation) Owns() []review.Field { return []review.Field{review.FieldDocumentation} }

func (d *Documentation) Run(_ context.Context, snap review.State) review.Update {
	results := make([]models.DocumentationResult, 0, len(snap.Files))
	for _, f := range snap.Files {
		results = append(results, AnalyzeDocumentation(f.Filename, f.Content))
	}
	return review.Update{Documentation: results, CompletedTasks: []string{NameDocumentation}}
}

func (d *Documentation) Default(snap review.State) review.Update {
	results := make([]models.DocumentationResult, 0, len(snap.Files))
	for _, f := range snap.Files {
		results = append(results, docFallback(f.Filename))
	}
	return review.Update{Documentation: results}
}

func docFallback(filename string) models.DocumentationResult {
	return models.DocumentationResult{
		Filename:             filename,
		MissingDocumentation: []string{"Unable to analyze documentation"},
	}
}

// AnalyzeDocumentation reports documentation coverage for one file. A file
// with nothing to document is fully covered.
func AnalyzeDocumentation(filename, content string) models.DocumentationResult {
	f, err := source.Parse(filename, content)
	if err != nil {
		return docFallback(filename)
	}

	res := models.DocumentationResult{
		Filename:             filename,
		TotalItems:           len(f.Units),
		MissingDocumentation: []string{},
	}
	// Functions are listed before classes.
	for _, group := range [][]source.Unit{f.Functions(), f.Classes()} {
		for _, u := range group {
			if u.Documented {
				res.DocumentedItems++
				continue
			}
			res.MissingDocumentation = append(res.MissingDocumentation, u.Label()+" missing docstring")
		}
	}
	if res.TotalItems == 0 {
		res.Coverage = 100
	} else {
		res.Coverage = float64(res.DocumentedItems) / float64(res.TotalItems) * 100
	}
	return res
}
