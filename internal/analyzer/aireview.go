package analyzer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/reviewpipe/internal/llm"
	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/review"
	"github.com/joescharf/reviewpipe/internal/source"
)

// Reviewer reviews a single file. *llm.Client satisfies it.
type Reviewer interface {
	ReviewFile(ctx context.Context, req llm.ReviewRequest) (models.AIReview, error)
}

// AIReview asks an LLM to review each file. Security findings are always
// attached; lint and coverage results only when the snapshot already has them.
type AIReview struct {
	Reviewer Reviewer
	Logger   review.Logger
}

func (a *AIReview) Name() string         { return NameAIReview }
func (a *AIReview) Owns() []review.Field { return []review.Field{review.FieldAIReviews} }

func (a *AIReview) Run(ctx context.Context, snap review.State) review.Update {
	reviews := make([]models.AIReview, len(snap.Files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range snap.Files {
		g.Go(func() error {
			reviews[i] = a.safeReviewFile(gctx, snap, f)
			return nil
		})
	}
	_ = g.Wait()
	return review.Update{AIReviews: reviews, CompletedTasks: []string{NameAIReview}}
}

func (a *AIReview) Default(snap review.State) review.Update {
	reviews := make([]models.AIReview, 0, len(snap.Files))
	for _, f := range snap.Files {
		reviews = append(reviews, FallbackReview(f.Filename, ""))
	}
	return review.Update{AIReviews: reviews}
}

// safeReviewFile runs on its own goroutine, out of reach of the dispatcher's
// recover, so a panicking reviewer is turned into a fallback here.
func (a *AIReview) safeReviewFile(ctx context.Context, snap review.State, f models.FileData) (r models.AIReview) {
	defer func() {
		if p := recover(); p != nil {
			if a.Logger != nil {
				a.Logger.Warning("AI review of %s panicked: %v", f.Filename, p)
			}
			r = FallbackReview(f.Filename, fmt.Sprint(p))
		}
	}()
	return a.reviewFile(ctx, snap, f)
}

func (a *AIReview) reviewFile(ctx context.Context, snap review.State, f models.FileData) models.AIReview {
	// Tasks share one pre-dispatch snapshot, so the security slot is usually
	// still empty here. The scan is cheap and local; run it for the context.
	sec := findSecurity(snap.Security, f.Filename)
	if sec == nil && f.Content != "" {
		res := ScanSecurity(f.Filename, f.Content)
		sec = &res
	}

	var r models.AIReview
	switch {
	case a.Reviewer == nil || f.Content == "":
		r = FallbackReview(f.Filename, "")
	default:
		var err error
		r, err = a.Reviewer.ReviewFile(ctx, llm.ReviewRequest{
			Filename: f.Filename,
			Language: string(source.DetectLanguage(f.Filename)),
			Content:  f.Content,
			Quality:  findQuality(snap.Quality, f.Filename),
			Coverage: findCoverage(snap.Coverage, f.Filename),
			Security: sec,
		})
		if err != nil {
			if a.Logger != nil {
				a.Logger.Warning("AI review of %s failed: %v", f.Filename, err)
			}
			r = FallbackReview(f.Filename, err.Error())
		}
	}

	if sec != nil {
		r.SecurityContext = &models.SecurityContext{
			Score:              sec.Score,
			VulnerabilityCount: len(sec.Vulnerabilities),
			HighSeverityIssues: sec.SeverityCounts.High,
		}
	}
	return r
}

// FallbackReview is the review used when the model is unavailable or its
// reply could not be used.
func FallbackReview(filename, raw string) models.AIReview {
	return models.AIReview{
		Filename:               filename,
		OverallScore:           0.7,
		Confidence:             0.6,
		Strengths:              []string{"Code structure appears reasonable"},
		Issues:                 []string{"Unable to perform detailed analysis"},
		Recommendations:        []string{"Manual code review recommended"},
		RefactoringSuggestions: []string{},
		SecurityConcerns:       []string{"Manual security review needed"},
		RawResponse:            raw,
		Note:                   "Fallback review, AI analysis unavailable",
	}
}

func findSecurity(rs []models.SecurityResult, filename string) *models.SecurityResult {
	for i := range rs {
		if rs[i].Filename == filename {
			return &rs[i]
		}
	}
	return nil
}

func findQuality(rs []models.QualityResult, filename string) *models.QualityResult {
	for i := range rs {
		if rs[i].Filename == filename {
			return &rs[i]
		}
	}
	return nil
}

func findCoverage(rs []models.CoverageResult, filename string) *models.CoverageResult {
	for i := range rs {
		if rs[i].Filename == filename {
			return &rs[i]
		}
	}
	return nil
}
