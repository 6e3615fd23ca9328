package analyzer

import (
	"context"
	"regexp"
	"strings"

	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/review"
)

type securityPattern struct {
	re          *regexp.Regexp
	severity    models.Severity
	description string
}

var securityPatterns = []securityPattern{
	{regexp.MustCompile(`(?i)eval\s*\(`), models.SeverityHigh, "Use of eval() - Code injection risk"},
	{regexp.MustCompile(`(?i)exec\s*\(`), models.SeverityHigh, "Use of exec() - Code execution risk"},
	{regexp.MustCompile(`(?i)subprocess.*shell\s*=\s*True`), models.SeverityHigh, "Shell injection vulnerability"},
	{regexp.MustCompile(`(?i)pickle\.loads?\s*\(`), models.SeverityMedium, "Unsafe deserialization with pickle"},
	{regexp.MustCompile(`(?i)input\s*\(.*\)`), models.SeverityLow, "Unvalidated user input"},
	{regexp.MustCompile(`(?i)open\s*\([^)]*['"]w['"]`), models.SeverityMedium, "File write operations"},
	{regexp.MustCompile(`(?i)requests\..*verify\s*=\s*False`), models.SeverityMedium, "SSL verification disabled"},
	{regexp.MustCompile(`(?i)password\s*=\s*['"][^'"]+['"]`), models.SeverityHigh, "Hardcoded password"},
	{regexp.MustCompile(`(?i)api_key\s*=\s*['"][^'"]+['"]`), models.SeverityHigh, "Hardcoded API key"},

	{regexp.MustCompile(`InsecureSkipVerify\s*:\s*true`), models.SeverityMedium, "TLS certificate verification disabled"},
	{regexp.MustCompile(`exec\.Command(Context)?\([^)]*"(ba)?sh",\s*"-c"`), models.SeverityHigh, "Shell command execution - Injection risk"},
	{regexp.MustCompile(`\b(md5|sha1)\.(New|Sum)\b`), models.SeverityLow, "Weak hash function"},
}

var severityPenalty = map[models.Severity]float64{
	models.SeverityHigh:   2.0,
	models.SeverityMedium: 1.0,
	models.SeverityLow:    0.5,
}

// defaultSecurityScore is used when a file could not be scanned.
const defaultSecurityScore = 5.0

// Security scans file content for risky patterns.
type Security struct{}

func (s *Security) Name() string         { return NameSecurity }
func (s *Security) Owns() []review.Field { return []review.Field{review.FieldSecurity} }

func (s *Security) Run(_ context.Context, snap review.State) review.Update {
	results := make([]models.SecurityResult, 0, len(snap.Files))
	for _, f := range snap.Files {
		results = append(results, ScanSecurity(f.Filename, f.Content))
	}
	return review.Update{Security: results, CompletedTasks: []string{NameSecurity}}
}

func (s *Security) Default(snap review.State) review.Update {
	results := make([]models.SecurityResult, 0, len(snap.Files))
	for _, f := range snap.Files {
		results = append(results, models.SecurityResult{
			Filename:        f.Filename,
			Score:           defaultSecurityScore,
			Vulnerabilities: []models.Vulnerability{},
			Recommendations: []string{"Security scan unavailable; review manually"},
			Note:            "Analysis failed, using default values",
		})
	}
	return review.Update{Security: results}
}

// ScanSecurity matches every pattern against content. Each match lowers the
// score from 10 by its severity penalty, floored at 0.
func ScanSecurity(filename, content string) models.SecurityResult {
	res := models.SecurityResult{
		Filename:        filename,
		Score:           10.0,
		Vulnerabilities: []models.Vulnerability{},
	}

	for _, p := range securityPatterns {
		for _, loc := range p.re.FindAllStringIndex(content, -1) {
			res.Vulnerabilities = append(res.Vulnerabilities, models.Vulnerability{
				Line:        strings.Count(content[:loc[0]], "\n") + 1,
				Severity:    p.severity,
				Description: p.description,
				Snippet:     content[loc[0]:loc[1]],
			})
			res.Score -= severityPenalty[p.severity]

			switch p.severity {
			case models.SeverityHigh:
				res.SeverityCounts.High++
			case models.SeverityMedium:
				res.SeverityCounts.Medium++
			default:
				res.SeverityCounts.Low++
			}
		}
	}
	if res.Score < 0 {
		res.Score = 0
	}

	if res.SeverityCounts.High > 0 {
		res.Recommendations = append(res.Recommendations, "Address high-severity security vulnerabilities immediately")
	}
	if res.SeverityCounts.Medium > 0 {
		res.Recommendations = append(res.Recommendations, "Review and fix medium-severity security issues")
	}
	if len(res.Vulnerabilities) == 0 {
		res.Recommendations = append(res.Recommendations, "No obvious security vulnerabilities detected")
	}
	return res
}
