package analyzer

import (
	"context"
	"path"
	"strings"

	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/review"
	"github.com/joescharf/reviewpipe/internal/source"
)

// Test types looked for in test code.
const (
	TestTypeUnit        = "Unit tests"
	TestTypeMock        = "Mock tests"
	TestTypeIntegration = "Integration tests"
)

// Coverage estimates test coverage from the tests included in the change set.
// A unit counts as covered when a related test file mentions it by name.
type Coverage struct {
	// Min is the coverage below which a file needs tests. Zero means DefaultCoverageMin.
	Min float64
}

func (c *Coverage) Name() string { return NameCoverage }

func (c *Coverage) Owns() []review.Field {
	return []review.Field{review.FieldCoverage, review.FieldMissingTests}
}

func (c *Coverage) min() float64 {
	if c.Min <= 0 {
		return DefaultCoverageMin
	}
	return c.Min
}

func (c *Coverage) Run(_ context.Context, snap review.State) review.Update {
	cov := make([]models.CoverageResult, 0, len(snap.Files))
	missing := make([]models.MissingTest, 0, len(snap.Files))
	for _, f := range snap.Files {
		res, parsed := EstimateCoverage(f, snap.Files)
		cov = append(cov, res)
		missing = append(missing, c.missingTests(f, parsed, res.CoveragePercent))
	}
	return review.Update{
		Coverage:       cov,
		MissingTests:   missing,
		CompletedTasks: []string{NameCoverage},
	}
}

func (c *Coverage) Default(snap review.State) review.Update {
	cov := make([]models.CoverageResult, 0, len(snap.Files))
	missing := make([]models.MissingTest, 0, len(snap.Files))
	for _, f := range snap.Files {
		cov = append(cov, coverageFallback(f.Filename))
		missing = append(missing, models.MissingTest{
			Filename:   f.Filename,
			Functions:  []string{},
			Classes:    []string{},
			NeedsTests: true,
		})
	}
	return review.Update{Coverage: cov, MissingTests: missing}
}

func (c *Coverage) missingTests(f models.FileData, parsed *source.File, pct float64) models.MissingTest {
	mt := models.MissingTest{
		Filename:        f.Filename,
		Functions:       []string{},
		Classes:         []string{},
		CoveragePercent: pct,
		NeedsTests:      pct < c.min(),
	}
	if parsed == nil {
		return mt
	}
	for _, u := range parsed.Functions() {
		if u.Exported {
			mt.Functions = append(mt.Functions, u.Name)
		}
	}
	for _, u := range parsed.Classes() {
		mt.Classes = append(mt.Classes, u.Name)
	}
	return mt
}

func coverageFallback(filename string) models.CoverageResult {
	res := models.CoverageResult{
		Filename:  filename,
		Uncovered: []string{},
		Note:      "No coverage data available",
	}
	applyTestQuality(&res, false, "")
	return res
}

// EstimateCoverage computes the coverage of f from the test files in files.
// The parsed form of f is returned for reuse, or nil when f could not be parsed.
func EstimateCoverage(f models.FileData, files []models.FileData) (models.CoverageResult, *source.File) {
	parsed, err := source.Parse(f.Filename, f.Content)
	if err != nil {
		return coverageFallback(f.Filename), nil
	}

	res := models.CoverageResult{
		Filename:   f.Filename,
		UnitsTotal: len(parsed.Units),
		Uncovered:  []string{},
	}

	if source.IsTestFile(f.Filename) {
		res.CoveragePercent = 100
		res.UnitsCovered = res.UnitsTotal
		res.HasTests = true
		applyTestQuality(&res, true, f.Content)
		return res, parsed
	}

	tests := relatedTests(f, files)
	res.HasTests = len(tests) > 0
	for _, u := range parsed.Units {
		if res.HasTests && mentions(tests, u.Name) {
			res.UnitsCovered++
		} else {
			res.Uncovered = append(res.Uncovered, u.Label())
		}
	}

	switch {
	case res.UnitsTotal == 0:
		res.CoveragePercent = 100
	default:
		res.CoveragePercent = float64(res.UnitsCovered) / float64(res.UnitsTotal) * 100
	}
	if !res.HasTests {
		res.Note = "No tests found in change set"
	}
	applyTestQuality(&res, res.HasTests, strings.Join(tests, "\n"))
	return res, parsed
}

// relatedTests returns the contents of test files that exercise f: for Go the
// test files of the same package directory, for Python the test files that
// mention f's module name.
func relatedTests(f models.FileData, files []models.FileData) []string {
	lang := source.DetectLanguage(f.Filename)
	var out []string
	for _, t := range files {
		if t.Filename == f.Filename || !source.IsTestFile(t.Filename) || source.DetectLanguage(t.Filename) != lang {
			continue
		}
		switch lang {
		case source.Go:
			if path.Dir(t.Filename) == path.Dir(f.Filename) {
				out = append(out, t.Content)
			}
		case source.Python:
			if source.References(t.Content, source.ModuleName(f.Filename)) {
				out = append(out, t.Content)
			}
		}
	}
	return out
}

func mentions(contents []string, name string) bool {
	for _, c := range contents {
		if source.References(c, name) {
			return true
		}
	}
	return false
}

// applyTestQuality fills the test-quality metrics. testCode is the test code
// that exercises the file, empty when there is none.
func applyTestQuality(res *models.CoverageResult, hasTests bool, testCode string) {
	res.MissingTestTypes = []string{}
	if !hasTests {
		res.TestQualityScore = 5.0
		res.MissingTestTypes = append(res.MissingTestTypes, TestTypeUnit, TestTypeIntegration, TestTypeMock)
	} else {
		res.TestQualityScore = 8.0
		if !containsAny(testCode, "unittest", "pytest", "testing.T", "func Test") {
			res.MissingTestTypes = append(res.MissingTestTypes, TestTypeUnit)
		}
		if !containsAny(testCode, "mock", "Mock", "fake", "Fake") {
			res.MissingTestTypes = append(res.MissingTestTypes, TestTypeMock)
		}
		if !strings.Contains(strings.ToLower(testCode), "integration") {
			res.MissingTestTypes = append(res.MissingTestTypes, TestTypeIntegration)
		}
	}
	res.TestabilityScore = max(0, 10.0-float64(len(res.MissingTestTypes))*2.0)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
