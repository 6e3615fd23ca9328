package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/review"
	"github.com/joescharf/reviewpipe/internal/source"
)

// Complexity limits.
const (
	MaxFunctionLines = 50
	MaxParams        = 7
)

// DefaultLintTimeout bounds one linter subprocess.
const DefaultLintTimeout = 30 * time.Second

// defaultLintScore is used when linting fails or reports no score.
const defaultLintScore = 5.0

// LintReport is what a linter says about one file.
type LintReport struct {
	Score  float64
	Issues []models.LintIssue
}

// Linter scores one file on a 0-10 scale.
type Linter interface {
	Lint(ctx context.Context, filename, content string) (LintReport, error)
}

// Quality scores files with a linter and adds complexity metrics.
type Quality struct {
	Linters map[source.Language]Linter
	Logger  review.Logger
}

func (q *Quality) Name() string         { return NameQuality }
func (q *Quality) Owns() []review.Field { return []review.Field{review.FieldQuality} }

func (q *Quality) Run(ctx context.Context, snap review.State) review.Update {
	results := make([]models.QualityResult, 0, len(snap.Files))
	for _, f := range snap.Files {
		results = append(results, q.analyze(ctx, f))
	}
	return review.Update{Quality: results, CompletedTasks: []string{NameQuality}}
}

func (q *Quality) Default(snap review.State) review.Update {
	results := make([]models.QualityResult, 0, len(snap.Files))
	for _, f := range snap.Files {
		res := lintFallback(f.Filename)
		applyComplexity(&res, complexityFallback())
		results = append(results, res)
	}
	return review.Update{Quality: results}
}

func (q *Quality) analyze(ctx context.Context, f models.FileData) models.QualityResult {
	var res models.QualityResult
	report, err := q.linterFor(source.DetectLanguage(f.Filename)).Lint(ctx, f.Filename, f.Content)
	if err != nil {
		if q.Logger != nil {
			q.Logger.Warning("lint %s: %v", f.Filename, err)
		}
		res = lintFallback(f.Filename)
	} else {
		res = models.QualityResult{
			Filename: f.Filename,
			Score:    report.Score,
			Issues:   report.Issues,
		}
		if res.Issues == nil {
			res.Issues = []models.LintIssue{}
		}
		countIssues(&res)
	}
	applyComplexity(&res, AnalyzeComplexity(f.Filename, f.Content))
	return res
}

func (q *Quality) linterFor(lang source.Language) Linter {
	if l, ok := q.Linters[lang]; ok && l != nil {
		return l
	}
	return HeuristicLinter{}
}

func lintFallback(filename string) models.QualityResult {
	return models.QualityResult{
		Filename: filename,
		Score:    defaultLintScore,
		Issues:   []models.LintIssue{},
		Note:     "Analysis failed, using default values",
	}
}

func countIssues(res *models.QualityResult) {
	res.TotalIssues = len(res.Issues)
	for _, is := range res.Issues {
		switch is.Type {
		case "error", "fatal":
			res.ErrorCount++
		case "warning":
			res.WarningCount++
		case "convention":
			res.ConventionCount++
		}
	}
}

// Complexity holds the structural metrics of one file.
type Complexity struct {
	Score                float64
	MaintainabilityIndex float64
	CodeSmells           []string
	TechnicalDebt        float64
}

func complexityFallback() Complexity {
	return Complexity{
		Score:                5.0,
		MaintainabilityIndex: 50.0,
		CodeSmells:           []string{"Unable to analyze code complexity"},
		TechnicalDebt:        1.0,
	}
}

func applyComplexity(res *models.QualityResult, c Complexity) {
	res.ComplexityScore = c.Score
	res.MaintainabilityIndex = c.MaintainabilityIndex
	res.CodeSmells = c.CodeSmells
	res.TechnicalDebt = c.TechnicalDebt
}

// AnalyzeComplexity penalizes long functions and long parameter lists.
func AnalyzeComplexity(filename, content string) Complexity {
	f, err := source.Parse(filename, content)
	if err != nil {
		return complexityFallback()
	}

	c := Complexity{Score: 10.0, CodeSmells: []string{}}
	funcs := f.Functions()
	for _, fn := range funcs {
		if n := fn.Lines(); n > MaxFunctionLines {
			c.Score -= 1.0
			c.CodeSmells = append(c.CodeSmells, fmt.Sprintf("Function '%s' is too long (%d lines)", fn.Name, n))
		}
	}
	for _, fn := range funcs {
		if fn.Params > MaxParams {
			c.Score -= 0.5
			c.CodeSmells = append(c.CodeSmells, fmt.Sprintf("Function '%s' has too many parameters (%d)", fn.Name, fn.Params))
		}
	}
	c.MaintainabilityIndex = math.Max(0, c.Score*10)
	c.TechnicalDebt = float64(len(c.CodeSmells)) * 0.5
	c.Score = math.Max(0, c.Score)
	return c
}

// CommandLinter runs pylint on a temporary copy of the file.
type CommandLinter struct {
	Path    string
	Timeout time.Duration
}

// NewPylint returns a CommandLinter for the pylint binary at path.
func NewPylint(path string, timeout time.Duration) *CommandLinter {
	if path == "" {
		path = "pylint"
	}
	if timeout <= 0 {
		timeout = DefaultLintTimeout
	}
	return &CommandLinter{Path: path, Timeout: timeout}
}

type pylintMessage struct {
	Type    string `json:"type"`
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

// pylintReport is the json2 reporter's document (pylint 3 and later).
type pylintReport struct {
	Messages   []pylintMessage `json:"messages"`
	Statistics struct {
		Score *float64 `json:"score"`
	} `json:"statistics"`
}

func (l *CommandLinter) Lint(ctx context.Context, filename, content string) (LintReport, error) {
	dir, err := os.MkdirTemp("", "reviewpipe-lint-")
	if err != nil {
		return LintReport{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return LintReport{}, fmt.Errorf("write temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, l.Path, "--output-format=json2", "--score=y", "--disable=C0114,C0115,C0116", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return LintReport{}, fmt.Errorf("%s timed out after %s", l.Path, l.Timeout)
		}
		// pylint exits non-zero whenever it reports messages.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return LintReport{}, fmt.Errorf("run %s: %w", l.Path, err)
		}
	}

	score, issues, ok := parsePylintReport(stdout.Bytes())
	if !ok {
		return LintReport{}, fmt.Errorf("parse %s output: %s", l.Path, strings.TrimSpace(stderr.String()))
	}
	if score < 0 {
		score = pylintScore(stderr.String()+"\n"+stdout.String(), defaultLintScore)
	}
	return LintReport{Score: score, Issues: issues}, nil
}

// parsePylintReport reads either the json2 document or the legacy json
// message array. score is -1 when the output carries none.
func parsePylintReport(out []byte) (score float64, issues []models.LintIssue, ok bool) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return -1, []models.LintIssue{}, false
	}

	var msgs []pylintMessage
	score = -1
	if out[0] == '[' {
		if json.Unmarshal(out, &msgs) != nil {
			return -1, []models.LintIssue{}, false
		}
	} else {
		var rep pylintReport
		if json.Unmarshal(out, &rep) != nil {
			return -1, []models.LintIssue{}, false
		}
		msgs = rep.Messages
		if rep.Statistics.Score != nil {
			score = math.Max(0, math.Min(10, *rep.Statistics.Score))
		}
	}

	issues = make([]models.LintIssue, 0, len(msgs))
	for _, m := range msgs {
		issues = append(issues, models.LintIssue(m))
	}
	return score, issues, true
}

// pylintScore extracts N from "Your code has been rated at N/10", which the
// text reporter prints.
func pylintScore(output string, fallback float64) float64 {
	for _, line := range strings.Split(output, "\n") {
		_, after, ok := strings.Cut(line, "rated at")
		if !ok {
			continue
		}
		num, _, _ := strings.Cut(after, "/")
		if v, err := strconv.ParseFloat(strings.TrimSpace(num), 64); err == nil {
			return v
		}
	}
	return fallback
}

// HeuristicLinter scores files without external tools. It deducts for syntax
// errors, long lines, trailing whitespace, bare excepts and TODO markers.
type HeuristicLinter struct{}

const maxLineLength = 120

func (HeuristicLinter) Lint(_ context.Context, filename, content string) (LintReport, error) {
	issues := []models.LintIssue{}
	lang := source.DetectLanguage(filename)

	if lang != source.Unknown {
		if _, err := source.Parse(filename, content); err != nil {
			issues = append(issues, models.LintIssue{
				Type:    "error",
				Symbol:  "syntax-error",
				Message: err.Error(),
			})
		}
	}

	for i, line := range strings.Split(content, "\n") {
		n := i + 1
		trimmed := strings.TrimSpace(line)
		if len(line) > maxLineLength {
			issues = append(issues, models.LintIssue{Type: "convention", Symbol: "line-too-long",
				Message: fmt.Sprintf("Line too long (%d/%d)", len(line), maxLineLength), Line: n})
		}
		if line != strings.TrimRight(line, " \t\r") {
			issues = append(issues, models.LintIssue{Type: "convention", Symbol: "trailing-whitespace",
				Message: "Trailing whitespace", Line: n})
		}
		if lang == source.Python && (trimmed == "except:" || strings.HasPrefix(trimmed, "except: ")) {
			issues = append(issues, models.LintIssue{Type: "warning", Symbol: "bare-except",
				Message: "No exception type(s) specified", Line: n})
		}
		if strings.Contains(line, "TODO") || strings.Contains(line, "FIXME") {
			issues = append(issues, models.LintIssue{Type: "warning", Symbol: "fixme",
				Message: "Unresolved TODO or FIXME", Line: n})
		}
	}

	score := 10.0
	for _, is := range issues {
		switch is.Type {
		case "error":
			score -= 5.0
		case "warning":
			score -= 0.5
		default:
			score -= 0.1
		}
	}
	score = math.Round(math.Max(0, score)*100) / 100
	return LintReport{Score: score, Issues: issues}, nil
}
