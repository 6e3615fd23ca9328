package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/review"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func record(reviewID, owner, repo string, stage review.Stage, finished time.Time) *models.ReviewRecord {
	return &models.ReviewRecord{
		ReviewID:   reviewID,
		Owner:      owner,
		Repo:       repo,
		Stage:      string(stage),
		StateJSON:  "{}",
		CreatedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestReviewCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	rec := record("REV-20261019-AAAA1111", "acme", "widgets", review.StageEscalated, now)
	rec.ChangeID = 42
	rec.Recommendation = string(models.RecommendReject)
	rec.Critical = true
	rec.CriticalReason = "Security vulnerabilities found"
	rec.FilesReviewed = 3
	require.NoError(t, s.SaveReview(ctx, rec))
	assert.NotEmpty(t, rec.ID)

	// By review id
	got, err := s.GetReview(ctx, "REV-20261019-AAAA1111")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, 42, got.ChangeID)
	assert.Equal(t, "REJECT", got.Recommendation)
	assert.True(t, got.Critical)
	assert.Equal(t, "Security vulnerabilities found", got.CriticalReason)
	assert.Equal(t, 3, got.FilesReviewed)
	assert.True(t, got.FinishedAt.Equal(now))

	// By record id
	got, err = s.GetReview(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ReviewID, got.ReviewID)

	// Duplicate review ids are rejected
	assert.Error(t, s.SaveReview(ctx, record("REV-20261019-AAAA1111", "acme", "widgets", review.StageCompleted, now)))

	require.NoError(t, s.DeleteReview(ctx, rec.ID))
	_, err = s.GetReview(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetReview_Prefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveReview(ctx, record("REV-20261019-AB000001", "acme", "widgets", review.StageCompleted, now)))
	require.NoError(t, s.SaveReview(ctx, record("REV-20261019-AB000002", "acme", "widgets", review.StageCompleted, now)))

	got, err := s.GetReview(ctx, "rev-20261019-ab000002")
	require.NoError(t, err)
	assert.Equal(t, "REV-20261019-AB000002", got.ReviewID)

	_, err = s.GetReview(ctx, "REV-20261019-AB")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = s.GetReview(ctx, "REV-1999")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetReview(ctx, "  ")
	assert.ErrorIs(t, err, ErrNotFound)

	// LIKE wildcards are matched literally
	_, err = s.GetReview(ctx, "%")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListReviews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, s.SaveReview(ctx, record("REV-1", "acme", "widgets", review.StageCompleted, base)))
	require.NoError(t, s.SaveReview(ctx, record("REV-2", "acme", "widgets", review.StageEscalated, base.Add(time.Minute))))
	require.NoError(t, s.SaveReview(ctx, record("REV-3", "acme", "gadgets", review.StageCompleted, base.Add(2*time.Minute))))
	require.NoError(t, s.SaveReview(ctx, record("REV-4", "other", "widgets", review.StageError, base.Add(3*time.Minute))))

	all, err := s.ListReviews(ctx, ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "REV-4", all[0].ReviewID, "newest first")

	byRepo, err := s.ListReviews(ctx, ReviewFilter{Owner: "acme", Repo: "widgets"})
	require.NoError(t, err)
	require.Len(t, byRepo, 2)
	assert.Equal(t, "REV-2", byRepo[0].ReviewID)

	escalated, err := s.ListReviews(ctx, ReviewFilter{Stage: string(review.StageEscalated)})
	require.NoError(t, err)
	require.Len(t, escalated, 1)
	assert.Equal(t, "REV-2", escalated[0].ReviewID)

	limited, err := s.ListReviews(ctx, ReviewFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := s.ListReviews(ctx, ReviewFilter{Owner: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordFromState(t *testing.T) {
	st := review.NewState(models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7})
	st.Files = []models.FileData{{Filename: "app.py"}, {Filename: "util.py"}}
	st.HasCriticalIssues = true
	st.CriticalReason = "Security vulnerabilities found"
	st.Summary = &models.Summary{Recommendation: models.RecommendReject}
	st.SetStage(review.StageEscalated)

	rec, err := RecordFromState(st)
	require.NoError(t, err)
	assert.Equal(t, st.ID, rec.ReviewID)
	assert.Equal(t, "acme", rec.Owner)
	assert.Equal(t, 7, rec.ChangeID)
	assert.Equal(t, "escalated", rec.Stage)
	assert.Equal(t, "REJECT", rec.Recommendation)
	assert.Equal(t, 2, rec.FilesReviewed)
	assert.True(t, rec.Critical)

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveReview(ctx, rec))

	got, err := s.GetReview(ctx, st.ID)
	require.NoError(t, err)
	back, err := StateFromRecord(got)
	require.NoError(t, err)
	assert.Equal(t, st.ID, back.ID)
	assert.Equal(t, review.StageEscalated, back.Stage)
	require.Len(t, back.Files, 2)
	assert.Equal(t, models.RecommendReject, back.Summary.Recommendation)
}
