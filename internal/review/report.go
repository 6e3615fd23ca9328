package review

import (
	"fmt"
	"strings"

	"github.com/joescharf/reviewpipe/internal/models"
)

// FormatReport renders the final report for a review whose summary and
// decision have been recorded.
func FormatReport(st *State, th Thresholds) string {
	var b strings.Builder
	line := func(format string, a ...any) {
		fmt.Fprintf(&b, format, a...)
		b.WriteByte('\n')
	}

	sum := models.Summary{Recommendation: models.RecommendNeedsWork, Priority: models.PriorityMedium}
	if st.Summary != nil {
		sum = *st.Summary
	}
	a := ComputeAverages(st)

	line("MULTI-ANALYZER CODE REVIEW REPORT")
	line("%s", strings.Repeat("=", 50))
	line("RECOMMENDATION: %s", sum.Recommendation)
	line("PRIORITY: %s", sum.Priority)
	line("")

	line("ANALYSIS RESULTS:")
	line("%s", strings.Repeat("=", 35))
	if a.HasSecurity {
		line("Security Score: %.2f/10.0", a.Security)
		line("Total Vulnerabilities: %d (High Severity: %d)", a.Vulnerabilities, a.HighSeverity)
	}
	if a.HasLint {
		line("Lint Score: %.2f/10.0", a.Lint)
	}
	if a.HasCoverage {
		line("Test Coverage: %.1f%%", a.Coverage)
	}
	if a.HasAI {
		line("AI Quality Score: %.2f/1.0 (Confidence: %.2f)", a.AIScore, a.AIConfidence)
	}
	if a.HasDocumentation {
		line("Documentation Coverage: %.1f%% (Missing: %d items)", a.Documentation, a.MissingDocs)
	}
	line("")

	if a.HighSeverity > 0 {
		line("CRITICAL SECURITY VULNERABILITIES:")
		for _, r := range st.Security {
			for _, v := range r.Vulnerabilities {
				if v.Severity == models.SeverityHigh {
					line("- %s: %s (Line %d)", r.Filename, v.Description, v.Line)
				}
			}
		}
		line("")
	}

	if items := nonBlank(sum.KeyFindings); len(items) > 0 {
		line("KEY FINDINGS:")
		for _, f := range items {
			line("- %s", f)
		}
		line("")
	}

	line("ACTION ITEMS:")
	if a.Vulnerabilities > 0 {
		line("- SECURITY: Address %d security vulnerabilities immediately", a.Vulnerabilities)
	}
	if a.HasLint && a.Lint < th.Lint {
		line("- QUALITY: Improve lint score from %.2f to >=%.1f/10.0", a.Lint, th.Lint)
	}
	if a.HasCoverage && a.Coverage < th.Coverage {
		line("- TESTING: Increase test coverage from %.1f%% to >=%.0f%%", a.Coverage, th.Coverage)
	}
	if a.HasDocumentation && a.Documentation < th.Documentation {
		line("- DOCUMENTATION: Improve documentation coverage from %.1f%% to >=%.0f%%", a.Documentation, th.Documentation)
	}
	if a.HasAI && a.AIScore < th.AIConfidence {
		line("- CODE QUALITY: Address AI-identified issues to improve score from %.2f to >=%.2f", a.AIScore, th.AIConfidence)
	}
	for _, item := range nonBlank(sum.ActionItems) {
		line("- %s", item)
	}
	line("")

	line("APPROVAL CRITERIA:")
	line("- Security score must be >=%.1f/10.0 with no high-severity vulnerabilities", th.Security)
	line("- Lint score must reach >=%.1f/10.0", th.Lint)
	line("- Test coverage must achieve >=%.0f%%", th.Coverage)
	line("- AI confidence must reach >=%.2f/1.0", th.AIConfidence)
	line("- Documentation coverage must reach >=%.0f%%", th.Documentation)
	for _, c := range nonBlank(sum.ApprovalCriteria) {
		line("- %s", c)
	}

	return b.String()
}

// nonBlank drops empty and placeholder bullet entries.
func nonBlank(items []string) []string {
	var out []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || it == "*" || it == "-" {
			continue
		}
		out = append(out, it)
	}
	return out
}

func changeLabel(st *State) string {
	if st.Ref.Number > 0 {
		return fmt.Sprintf("PR #%d", st.Ref.Number)
	}
	return st.Ref.String()
}

// StartedMessage announces that analysis has begun.
func StartedMessage(st *State) models.Message {
	return models.Message{
		Subject: fmt.Sprintf("Code Review Started: %s", changeLabel(st)),
		Body: fmt.Sprintf(`CODE REVIEW STARTED
===================
Review ID: %s
Title: %s
Author: %s
Files to Review: %d

Status: parallel analysis in progress
`, st.ID, orNA(st.Details.Title), orNA(st.Details.Author), len(st.Files)),
	}
}

// AnalysisCompleteMessage reports which analyzers finished and any warnings
// raised while they ran.
func AnalysisCompleteMessage(st *State) models.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "ANALYSIS COMPLETE\n=================\nReview ID: %s\nTitle: %s\n\n", st.ID, orNA(st.Details.Title))
	fmt.Fprintf(&b, "Analyzers completed: %s\n", strings.Join(st.CompletedTasks, ", "))
	if len(st.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range st.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	b.WriteString("\nStatus: generating summary and decision\n")
	return models.Message{
		Subject: fmt.Sprintf("Analysis Complete: %s", changeLabel(st)),
		Body:    b.String(),
	}
}

// FinalReportMessage wraps the report with the overall verdict.
func FinalReportMessage(st *State, report string) models.Message {
	status := "AUTO-APPROVED"
	footer := "REVIEW COMPLETED SUCCESSFULLY"
	if st.HasCriticalIssues {
		status = "HUMAN REVIEW REQUIRED"
		footer = "IMMEDIATE ATTENTION REQUIRED: " + st.CriticalReason
	}
	return models.Message{
		Subject: fmt.Sprintf("Final Report: %s - %s", changeLabel(st), status),
		Body: fmt.Sprintf(`FINAL CODE REVIEW REPORT
========================
Review ID: %s
Title: %s
Author: %s

FINAL STATUS: %s

%s
%s
`, st.ID, orNA(st.Details.Title), orNA(st.Details.Author), status, report, footer),
	}
}

// ErrorMessage reports a review that ended in the error stage.
func ErrorMessage(st *State, failedStage Stage) models.Message {
	return models.Message{
		Subject: fmt.Sprintf("Code Review Error: %s", changeLabel(st)),
		Body: fmt.Sprintf(`CODE REVIEW ERROR
=================
Review ID: %s
Change: %s
Stage: %s

ERROR: %s

Manual review required.
`, st.ID, st.Ref, failedStage, st.Error),
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
