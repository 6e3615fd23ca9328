package models

// Severity grades a security finding.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Vulnerability is a single security pattern match.
type Vulnerability struct {
	Line        int      `json:"line"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Snippet     string   `json:"code_snippet"`
}

// SeverityCounts tallies vulnerabilities by severity.
type SeverityCounts struct {
	High   int `json:"HIGH"`
	Medium int `json:"MEDIUM"`
	Low    int `json:"LOW"`
}

// SecurityResult is the security scan of one file.
type SecurityResult struct {
	Filename        string          `json:"filename"`
	Score           float64         `json:"security_score"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	SeverityCounts  SeverityCounts  `json:"severity_counts"`
	Recommendations []string        `json:"recommendations"`
	Note            string          `json:"note,omitempty"`
}

// LintIssue is one message reported by a linter.
type LintIssue struct {
	Type    string `json:"type"`
	Symbol  string `json:"symbol,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

// QualityResult is the lint and complexity analysis of one file.
type QualityResult struct {
	Filename             string      `json:"filename"`
	Score                float64     `json:"score"`
	Issues               []LintIssue `json:"issues"`
	TotalIssues          int         `json:"total_issues"`
	ErrorCount           int         `json:"error_count"`
	WarningCount         int         `json:"warning_count"`
	ConventionCount      int         `json:"convention_count"`
	ComplexityScore      float64     `json:"complexity_score"`
	MaintainabilityIndex float64     `json:"maintainability_index"`
	CodeSmells           []string    `json:"code_smells"`
	TechnicalDebt        float64     `json:"technical_debt"`
	Note                 string      `json:"note,omitempty"`
}

// CoverageResult is the test coverage estimate for one file.
type CoverageResult struct {
	Filename         string   `json:"filename"`
	CoveragePercent  float64  `json:"coverage_percent"`
	UnitsCovered     int      `json:"lines_covered"`
	UnitsTotal       int      `json:"lines_total"`
	Uncovered        []string `json:"missing_lines"`
	HasTests         bool     `json:"has_tests"`
	TestQualityScore float64  `json:"test_quality_score"`
	MissingTestTypes []string `json:"missing_test_types"`
	TestabilityScore float64  `json:"testability_score"`
	Note             string   `json:"note,omitempty"`
}

// MissingTest lists the testable units of a file that lack coverage.
type MissingTest struct {
	Filename        string   `json:"filename"`
	Functions       []string `json:"functions"`
	Classes         []string `json:"classes"`
	CoveragePercent float64  `json:"coverage_percent"`
	NeedsTests      bool     `json:"needs_tests"`
}

// SecurityContext is the security summary attached to an AI review.
type SecurityContext struct {
	Score              float64 `json:"security_score"`
	VulnerabilityCount int     `json:"vulnerability_count"`
	HighSeverityIssues int     `json:"high_severity_issues"`
}

// AIReview is the LLM review of one file.
type AIReview struct {
	Filename               string           `json:"filename"`
	OverallScore           float64          `json:"overall_score"`
	Confidence             float64          `json:"confidence"`
	Strengths              []string         `json:"strengths"`
	Issues                 []string         `json:"issues"`
	Recommendations        []string         `json:"recommendations"`
	RefactoringSuggestions []string         `json:"refactoring_suggestions"`
	SecurityConcerns       []string         `json:"security_concerns"`
	SecurityContext        *SecurityContext `json:"security_context,omitempty"`
	RawResponse            string           `json:"raw_response,omitempty"`
	Note                   string           `json:"note,omitempty"`
}

// DocumentationResult is the documentation coverage of one file.
type DocumentationResult struct {
	Filename             string   `json:"filename"`
	Coverage             float64  `json:"documentation_coverage"`
	MissingDocumentation []string `json:"missing_documentation"`
	TotalItems           int      `json:"total_items"`
	DocumentedItems      int      `json:"documented_items"`
}
