package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/joescharf/reviewpipe/internal/models"
)

// Defaults for the request limits.
const (
	DefaultMaxConcurrent     = 4
	DefaultRequestsPerMinute = 50
	DefaultTimeout           = 60 * time.Second
)

// Client wraps the Anthropic API for file reviews and review summaries.
type Client struct {
	api     *anthropic.Client
	model   anthropic.Model
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithMaxConcurrent caps in-flight API calls.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithRequestsPerMinute paces API calls. Zero or less disables pacing.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

// WithTimeout bounds each API call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string, opts ...Option) *Client {
	reqOpts := []option.RequestOption{}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(reqOpts...)
	c := &Client{
		api:     &client,
		model:   anthropic.Model(model),
		sem:     semaphore.NewWeighted(DefaultMaxConcurrent),
		limiter: rate.NewLimiter(rate.Every(time.Minute/DefaultRequestsPerMinute), 1),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// complete sends one prompt and returns the text of the reply with any
// markdown fencing removed.
func (c *Client) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire request slot: %w", err)
	}
	defer c.sem.Release(1)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("wait for rate limit: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.api.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return stripFences(text), nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// ReviewRequest is one file plus whatever other analyzers have already found.
type ReviewRequest struct {
	Filename string
	Language string
	Content  string
	Quality  *models.QualityResult
	Coverage *models.CoverageResult
	Security *models.SecurityResult
}

// buildReviewPrompt constructs the system and user prompts for a file review.
func buildReviewPrompt(req ReviewRequest) (system string, user string) {
	system = `You are an expert code reviewer. Analyze the file and return ONLY a JSON object with these fields:
- "overall_score": number from 0.0 to 1.0 rating overall code quality
- "confidence": number from 0.0 to 1.0, how confident you are that the file can ship without human review
- "strengths": 2-3 positive aspects
- "issues": 2-4 specific issues or improvements needed
- "recommendations": 2-4 specific actionable recommendations
- "refactoring_suggestions": 0-3 refactoring ideas
- "security_concerns": security issues, or ["None identified"]

Rules:
- All list fields are JSON arrays of strings
- Focus on code quality, maintainability, performance and best practices
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Filename: ")
	sb.WriteString(req.Filename)
	sb.WriteString("\n")
	if req.Quality != nil {
		fmt.Fprintf(&sb, "Lint score: %.2f/10\nLint issues found: %d\n", req.Quality.Score, req.Quality.TotalIssues)
	}
	if req.Coverage != nil {
		fmt.Fprintf(&sb, "Estimated test coverage: %.1f%%\n", req.Coverage.CoveragePercent)
	}
	if req.Security != nil {
		fmt.Fprintf(&sb, "Security scan: %.1f/10 with %d findings\n", req.Security.Score, len(req.Security.Vulnerabilities))
		for _, v := range req.Security.Vulnerabilities {
			fmt.Fprintf(&sb, "- line %d [%s] %s\n", v.Line, v.Severity, v.Description)
		}
	}
	fmt.Fprintf(&sb, "\nCode to review:\n```%s\n%s\n```\n", req.Language, req.Content)
	user = sb.String()
	return
}

type reviewResponse struct {
	OverallScore           float64  `json:"overall_score"`
	Confidence             float64  `json:"confidence"`
	Strengths              []string `json:"strengths"`
	Issues                 []string `json:"issues"`
	Recommendations        []string `json:"recommendations"`
	RefactoringSuggestions []string `json:"refactoring_suggestions"`
	SecurityConcerns       []string `json:"security_concerns"`
}

// parseReview decodes a review reply.
func parseReview(filename, text string) (models.AIReview, error) {
	var r reviewResponse
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return models.AIReview{}, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return models.AIReview{
		Filename:               filename,
		OverallScore:           clamp01(r.OverallScore),
		Confidence:             clamp01(r.Confidence),
		Strengths:              r.Strengths,
		Issues:                 r.Issues,
		Recommendations:        r.Recommendations,
		RefactoringSuggestions: r.RefactoringSuggestions,
		SecurityConcerns:       r.SecurityConcerns,
		RawResponse:            text,
	}, nil
}

// ReviewFile asks the model to review one file.
func (c *Client) ReviewFile(ctx context.Context, req ReviewRequest) (models.AIReview, error) {
	system, user := buildReviewPrompt(req)
	text, err := c.complete(ctx, system, user, 2048)
	if err != nil {
		return models.AIReview{}, err
	}
	return parseReview(req.Filename, text)
}

// buildSummaryPrompt constructs the prompts for the overall review summary.
func buildSummaryPrompt(details models.ChangeDetails, base models.Summary) (system string, user string) {
	system = `You summarize an automated multi-analyzer code review. Return ONLY a JSON object with these fields:
- "recommendation": one of "APPROVE", "NEEDS_WORK", "REJECT"
- "priority": one of "HIGH", "MEDIUM", "LOW"
- "key_findings": the 2-3 most important findings
- "action_items": 2-4 specific actions needed
- "approval_criteria": what needs to be fixed before approval

Rules:
- List fields are JSON arrays of strings
- Recommend REJECT when high-severity security vulnerabilities are present
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\nAuthor: %s\nFiles changed: %d\n", orNA(details.Title), orNA(details.Author), base.FilesReviewed)
	if details.Description != "" {
		fmt.Fprintf(&sb, "Description:\n%s\n", details.Description)
	}
	sb.WriteString("\nAnalysis results:\n")
	fmt.Fprintf(&sb, "Lint score: %.2f/10\n", base.AvgLintScore)
	fmt.Fprintf(&sb, "Test coverage: %.1f%%\n", base.AvgCoverage)
	fmt.Fprintf(&sb, "AI quality score: %.2f/1.0 (confidence %.2f)\n", base.AvgAIScore, base.AvgAIConfidence)
	fmt.Fprintf(&sb, "Security score: %.2f/10, %d vulnerabilities (%d high severity)\n",
		base.AvgSecurityScore, base.TotalVulnerabilities, base.HighSeverityCount)
	fmt.Fprintf(&sb, "Documentation coverage: %.1f%% (%d items missing)\n", base.AvgDocCoverage, base.MissingDocs)
	if len(base.ApprovalCriteria) > 0 {
		sb.WriteString("\nThresholds currently breached:\n")
		for _, c := range base.ApprovalCriteria {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
	}
	user = sb.String()
	return
}

type summaryResponse struct {
	Recommendation   string   `json:"recommendation"`
	Priority         string   `json:"priority"`
	KeyFindings      []string `json:"key_findings"`
	ActionItems      []string `json:"action_items"`
	ApprovalCriteria []string `json:"approval_criteria"`
}

// parseSummary decodes a summary reply. Unknown recommendation or priority
// values become NEEDS_WORK and MEDIUM.
func parseSummary(text string) (models.Summary, error) {
	var r summaryResponse
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return models.Summary{}, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	s := models.Summary{
		Recommendation:   models.RecommendNeedsWork,
		Priority:         models.PriorityMedium,
		KeyFindings:      r.KeyFindings,
		ActionItems:      r.ActionItems,
		ApprovalCriteria: r.ApprovalCriteria,
	}
	switch rec := models.Recommendation(strings.ToUpper(strings.TrimSpace(r.Recommendation))); rec {
	case models.RecommendApprove, models.RecommendNeedsWork, models.RecommendReject:
		s.Recommendation = rec
	}
	switch p := models.Priority(strings.ToUpper(strings.TrimSpace(r.Priority))); p {
	case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
		s.Priority = p
	}
	return s, nil
}

// Summarize writes the narrative fields of a review summary. The figures in
// base are passed through unchanged.
func (c *Client) Summarize(ctx context.Context, details models.ChangeDetails, base models.Summary) (models.Summary, error) {
	system, user := buildSummaryPrompt(details, base)
	text, err := c.complete(ctx, system, user, 1024)
	if err != nil {
		return models.Summary{}, err
	}
	return parseSummary(text)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
