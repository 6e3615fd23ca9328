package analyzer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewpipe/internal/llm"
	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/review"
)

type fakeReviewer struct {
	mu   sync.Mutex
	reqs map[string]llm.ReviewRequest
	fail map[string]bool
}

func (r *fakeReviewer) ReviewFile(_ context.Context, req llm.ReviewRequest) (models.AIReview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reqs == nil {
		r.reqs = map[string]llm.ReviewRequest{}
	}
	r.reqs[req.Filename] = req
	if r.fail[req.Filename] {
		return models.AIReview{}, errors.New("anthropic API call: overloaded")
	}
	return models.AIReview{Filename: req.Filename, OverallScore: 0.9, Confidence: 0.85}, nil
}

func TestAIReview_Run(t *testing.T) {
	st := review.NewState(models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7})
	st.Files = []models.FileData{
		{Filename: "a.py", Content: "def f():\n    return eval(x)\n"},
		{Filename: "b.py", Content: "def g():\n    return 2\n"},
		{Filename: "c.py", Content: ""},
	}
	st.Apply(review.Update{Security: []models.SecurityResult{ScanSecurity("a.py", st.Files[0].Content)}})
	snap := st.Snapshot()

	rev := &fakeReviewer{fail: map[string]bool{"b.py": true}}
	u := (&AIReview{Reviewer: rev}).Run(context.Background(), snap)

	assert.Equal(t, []string{NameAIReview}, u.CompletedTasks)
	require.Len(t, u.AIReviews, 3)

	a := u.AIReviews[0]
	assert.Equal(t, "a.py", a.Filename)
	assert.Equal(t, 0.85, a.Confidence)
	require.NotNil(t, a.SecurityContext)
	assert.Equal(t, 8.0, a.SecurityContext.Score)
	assert.Equal(t, 1, a.SecurityContext.HighSeverityIssues)
	assert.NotNil(t, rev.reqs["a.py"].Security)
	assert.Nil(t, rev.reqs["a.py"].Quality)
	assert.Equal(t, "python", rev.reqs["a.py"].Language)

	b := u.AIReviews[1]
	assert.Equal(t, 0.7, b.OverallScore)
	assert.Equal(t, 0.6, b.Confidence)
	assert.Contains(t, b.RawResponse, "overloaded")
	require.NotNil(t, b.SecurityContext, "scanned in-task when the slot is empty")
	assert.Equal(t, 0, b.SecurityContext.VulnerabilityCount)
	assert.NotNil(t, rev.reqs["b.py"].Security)

	_, called := rev.reqs["c.py"]
	assert.False(t, called)
	assert.Equal(t, "c.py", u.AIReviews[2].Filename)
	assert.Equal(t, 0.6, u.AIReviews[2].Confidence)
	assert.Nil(t, u.AIReviews[2].SecurityContext)
}

type panickyReviewer struct{}

func (panickyReviewer) ReviewFile(context.Context, llm.ReviewRequest) (models.AIReview, error) {
	var m map[string]int
	m["boom"]++
	return models.AIReview{}, nil
}

func TestAIReview_ReviewerPanicFallsBack(t *testing.T) {
	st := review.NewState(models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7})
	st.Files = []models.FileData{{Filename: "a.py", Content: "x = 1\n"}}

	d, err := review.NewDispatcher([]review.Task{
		&Security{},
		&AIReview{Reviewer: panickyReviewer{}},
	}, review.WithTaskTimeout(time.Second))
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), st))
	assert.ElementsMatch(t, []string{NameSecurity, NameAIReview}, st.CompletedTasks)
	require.Len(t, st.AIReviews, 1)
	assert.Equal(t, 0.6, st.AIReviews[0].Confidence)
	assert.Contains(t, st.AIReviews[0].RawResponse, "nil map")
}

func TestAIReview_NoReviewer(t *testing.T) {
	snap := snapshotOf(models.FileData{Filename: "a.py", Content: "x = 1\n"})
	u := (&AIReview{}).Run(context.Background(), snap)
	require.Len(t, u.AIReviews, 1)
	assert.Equal(t, FallbackReview("a.py", ""), u.AIReviews[0])

	d := (&AIReview{}).Default(snap)
	require.Len(t, d.AIReviews, 1)
	assert.Equal(t, 0.7, d.AIReviews[0].OverallScore)
}
