package models

import "time"

// Recommendation is the overall verdict of a review summary.
type Recommendation string

const (
	RecommendApprove   Recommendation = "APPROVE"
	RecommendNeedsWork Recommendation = "NEEDS_WORK"
	RecommendReject    Recommendation = "REJECT"
)

// Priority ranks how urgently a review needs attention.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Summary aggregates every analyzer's output for one review.
type Summary struct {
	Recommendation   Recommendation `json:"recommendation"`
	Priority         Priority       `json:"priority"`
	KeyFindings      []string       `json:"key_findings"`
	ActionItems      []string       `json:"action_items"`
	ApprovalCriteria []string       `json:"approval_criteria"`

	FilesReviewed        int     `json:"files_reviewed"`
	AvgLintScore         float64 `json:"avg_lint_score"`
	AvgCoverage          float64 `json:"avg_coverage"`
	AvgAIScore           float64 `json:"avg_ai_score"`
	AvgAIConfidence      float64 `json:"avg_ai_confidence"`
	AvgSecurityScore     float64 `json:"avg_security_score"`
	AvgDocCoverage       float64 `json:"avg_doc_coverage"`
	TotalVulnerabilities int     `json:"total_vulnerabilities"`
	HighSeverityCount    int     `json:"high_severity_count"`
	MissingDocs          int     `json:"missing_docs"`

	// SecurityRecommendation is CRITICAL, REVIEW or APPROVED.
	SecurityRecommendation string `json:"security_recommendation,omitempty"`
	// DocumentationRecommendation is NEEDS_IMPROVEMENT or GOOD.
	DocumentationRecommendation string `json:"documentation_recommendation,omitempty"`
}

// NotificationEvent names a point in the workflow that notifies stakeholders.
type NotificationEvent string

const (
	EventReviewStarted     NotificationEvent = "review_started"
	EventAnalysisComplete  NotificationEvent = "analysis_complete"
	EventFinalReport       NotificationEvent = "final_report"
	EventErrorNotification NotificationEvent = "error_notification"
)

// Notification records one notification attempt.
type Notification struct {
	Event     NotificationEvent `json:"type"`
	Delivered bool              `json:"delivered"`
	Timestamp time.Time         `json:"timestamp"`
}

// ReviewRecord is a finished review as kept in the history archive.
type ReviewRecord struct {
	ID             string
	ReviewID       string
	Owner          string
	Repo           string
	ChangeID       int
	Stage          string
	Recommendation string
	Critical       bool
	CriticalReason string
	FilesReviewed  int
	Error          string
	StateJSON      string
	CreatedAt      time.Time
	FinishedAt     time.Time
}
