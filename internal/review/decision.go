package review

import (
	"fmt"
	"strings"
)

// NoCriticalIssues is the reason recorded when no threshold is breached.
const NoCriticalIssues = "No critical issues detected"

// Thresholds are the minimums a change must meet to be approved without a human.
type Thresholds struct {
	Lint          float64 `json:"lint" yaml:"lint"`
	Coverage      float64 `json:"coverage" yaml:"coverage"`
	AIConfidence  float64 `json:"ai_confidence" yaml:"ai_confidence"`
	Security      float64 `json:"security" yaml:"security"`
	Documentation float64 `json:"documentation" yaml:"documentation"`
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Lint:          7.0,
		Coverage:      80,
		AIConfidence:  0.8,
		Security:      8.0,
		Documentation: 70,
	}
}

// Averages are the per-analyzer means over the merged result slots. The Has*
// flags are false for slots that hold no results.
type Averages struct {
	Lint, Coverage, AIScore, AIConfidence, Security, Documentation float64

	HasLint, HasCoverage, HasAI, HasSecurity, HasDocumentation bool

	Vulnerabilities int
	HighSeverity    int
	MissingDocs     int
	FilesReviewed   int
}

// ComputeAverages reduces the result slots of st.
func ComputeAverages(st *State) Averages {
	a := Averages{FilesReviewed: len(st.Files)}

	if n := len(st.Quality); n > 0 {
		a.HasLint = true
		for _, q := range st.Quality {
			a.Lint += q.Score
		}
		a.Lint /= float64(n)
	}
	if n := len(st.Coverage); n > 0 {
		a.HasCoverage = true
		for _, c := range st.Coverage {
			a.Coverage += c.CoveragePercent
		}
		a.Coverage /= float64(n)
	}
	if n := len(st.AIReviews); n > 0 {
		a.HasAI = true
		for _, r := range st.AIReviews {
			a.AIScore += r.OverallScore
			a.AIConfidence += r.Confidence
		}
		a.AIScore /= float64(n)
		a.AIConfidence /= float64(n)
	}
	if n := len(st.Security); n > 0 {
		a.HasSecurity = true
		for _, s := range st.Security {
			a.Security += s.Score
			a.Vulnerabilities += len(s.Vulnerabilities)
			a.HighSeverity += s.SeverityCounts.High
		}
		a.Security /= float64(n)
	}
	if n := len(st.Documentation); n > 0 {
		a.HasDocumentation = true
		for _, d := range st.Documentation {
			a.Documentation += d.Coverage
			a.MissingDocs += len(d.MissingDocumentation)
		}
		a.Documentation /= float64(n)
	}
	return a
}

// Breaches lists every threshold the averages fail, in check order: security,
// lint, coverage, AI confidence, documentation.
func Breaches(a Averages, th Thresholds) []string {
	var out []string

	if a.HasSecurity {
		low := a.Security < th.Security
		switch {
		case low && a.HighSeverity > 0:
			out = append(out, fmt.Sprintf("Security score too low: %.2f < %.1f with %d high-severity vulnerabilities",
				a.Security, th.Security, a.HighSeverity))
		case low:
			out = append(out, fmt.Sprintf("Security score too low: %.2f < %.1f", a.Security, th.Security))
		case a.HighSeverity > 0:
			out = append(out, fmt.Sprintf("Security risk: %d high-severity vulnerabilities", a.HighSeverity))
		}
	}
	if a.HasLint && a.Lint < th.Lint {
		out = append(out, fmt.Sprintf("Lint score too low: %.2f < %.1f", a.Lint, th.Lint))
	}
	if a.HasCoverage && a.Coverage < th.Coverage {
		out = append(out, fmt.Sprintf("Test coverage too low: %.1f%% < %.0f%%", a.Coverage, th.Coverage))
	}
	if a.HasAI && a.AIConfidence < th.AIConfidence {
		out = append(out, fmt.Sprintf("AI confidence too low: %.2f < %.2f", a.AIConfidence, th.AIConfidence))
	}
	if a.HasDocumentation && a.Documentation < th.Documentation {
		out = append(out, fmt.Sprintf("Documentation coverage too low: %.1f%% < %.0f%%", a.Documentation, th.Documentation))
	}
	return out
}

// Decide flags the review critical when any threshold is breached. It reads
// only the merged result slots.
func Decide(st *State, th Thresholds) (critical bool, reason string) {
	breaches := Breaches(ComputeAverages(st), th)
	if len(breaches) == 0 {
		return false, NoCriticalIssues
	}
	return true, strings.Join(breaches, "; ")
}
