package review

import (
	"context"
	"fmt"

	"github.com/joescharf/reviewpipe/internal/models"
)

// Summarizer writes the narrative part of a summary (recommendation, priority,
// findings, action items, approval criteria) from the computed figures.
// *llm.Client satisfies it.
type Summarizer interface {
	Summarize(ctx context.Context, details models.ChangeDetails, base models.Summary) (models.Summary, error)
}

// BuildSummary computes the aggregate figures of st and a deterministic
// narrative derived from the thresholds.
func BuildSummary(st *State, th Thresholds) models.Summary {
	a := ComputeAverages(st)
	s := models.Summary{
		FilesReviewed:        a.FilesReviewed,
		AvgLintScore:         a.Lint,
		AvgCoverage:          a.Coverage,
		AvgAIScore:           a.AIScore,
		AvgAIConfidence:      a.AIConfidence,
		AvgSecurityScore:     a.Security,
		AvgDocCoverage:       a.Documentation,
		TotalVulnerabilities: a.Vulnerabilities,
		HighSeverityCount:    a.HighSeverity,
		MissingDocs:          a.MissingDocs,
	}

	if a.HasSecurity {
		switch {
		case a.HighSeverity > 0:
			s.SecurityRecommendation = "CRITICAL"
		case a.Vulnerabilities > 0:
			s.SecurityRecommendation = "REVIEW"
		default:
			s.SecurityRecommendation = "APPROVED"
		}
	}
	if a.HasDocumentation {
		if a.Documentation < th.Documentation {
			s.DocumentationRecommendation = "NEEDS_IMPROVEMENT"
		} else {
			s.DocumentationRecommendation = "GOOD"
		}
	}

	breaches := Breaches(a, th)
	switch {
	case a.HighSeverity > 0:
		s.Recommendation, s.Priority = models.RecommendReject, models.PriorityHigh
	case len(breaches) > 0:
		s.Recommendation, s.Priority = models.RecommendNeedsWork, models.PriorityMedium
	default:
		s.Recommendation, s.Priority = models.RecommendApprove, models.PriorityLow
	}

	s.KeyFindings = keyFindings(a)
	if len(breaches) > 0 {
		s.ActionItems = []string{"Manual review recommended"}
		s.ApprovalCriteria = breaches
	}
	return s
}

func keyFindings(a Averages) []string {
	var out []string
	if a.HasSecurity {
		out = append(out, fmt.Sprintf("%d potential vulnerabilities (%d high severity)", a.Vulnerabilities, a.HighSeverity))
	}
	if a.HasLint {
		out = append(out, fmt.Sprintf("Average lint score %.2f/10", a.Lint))
	}
	if a.HasCoverage {
		out = append(out, fmt.Sprintf("Estimated test coverage %.1f%%", a.Coverage))
	}
	if a.HasAI {
		out = append(out, fmt.Sprintf("AI quality score %.2f (confidence %.2f)", a.AIScore, a.AIConfidence))
	}
	if a.HasDocumentation {
		out = append(out, fmt.Sprintf("Documentation coverage %.1f%% with %d undocumented items", a.Documentation, a.MissingDocs))
	}
	return out
}

// mergeNarrative takes the narrative fields from enhanced and keeps the figures
// of base. Blank narrative fields fall back to base.
func mergeNarrative(base, enhanced models.Summary) models.Summary {
	out := base
	if enhanced.Recommendation != "" {
		out.Recommendation = enhanced.Recommendation
	}
	if enhanced.Priority != "" {
		out.Priority = enhanced.Priority
	}
	if len(enhanced.KeyFindings) > 0 {
		out.KeyFindings = enhanced.KeyFindings
	}
	if len(enhanced.ActionItems) > 0 {
		out.ActionItems = enhanced.ActionItems
	}
	if len(enhanced.ApprovalCriteria) > 0 {
		out.ApprovalCriteria = enhanced.ApprovalCriteria
	}
	return out
}
