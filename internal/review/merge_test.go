package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewpipe/internal/models"
)

func testState() *State {
	st := NewState(models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7})
	st.Files = []models.FileData{
		{Filename: "a.py", Content: "x = 1\n"},
		{Filename: "b.py", Content: "y = 2\n"},
	}
	return st
}

func TestPolicies(t *testing.T) {
	p := Policies()

	for _, f := range []Field{FieldSecurity, FieldQuality, FieldCoverage, FieldMissingTests, FieldAIReviews, FieldDocumentation} {
		assert.Equal(t, MergeOverwrite, p[f], f)
		assert.True(t, f.Exclusive(), f)
	}
	assert.Equal(t, MergeUnion, p[FieldCompletedTasks])
	assert.Equal(t, MergeAppend, p[FieldNotifications])
	assert.Equal(t, MergeAppend, p[FieldWarnings])
	assert.False(t, FieldCompletedTasks.Exclusive())

	// The returned map is a copy.
	p[FieldSecurity] = MergeAppend
	assert.Equal(t, MergeOverwrite, Policies()[FieldSecurity])
}

func TestApply_OverwriteIsIdempotent(t *testing.T) {
	st := testState()
	u := Update{
		Security:       []models.SecurityResult{{Filename: "a.py", Score: 10}, {Filename: "b.py", Score: 8}},
		CompletedTasks: []string{"security"},
	}

	st.Apply(u)
	st.Apply(u)

	require.Len(t, st.Security, 2)
	assert.Equal(t, "a.py", st.Security[0].Filename)
	assert.Equal(t, []string{"security"}, st.CompletedTasks)
}

func TestApply_OverwriteReplaces(t *testing.T) {
	st := testState()
	st.Apply(Update{Quality: []models.QualityResult{{Filename: "a.py", Score: 3}}})
	st.Apply(Update{Quality: []models.QualityResult{{Filename: "a.py", Score: 9}}})

	require.Len(t, st.Quality, 1)
	assert.Equal(t, 9.0, st.Quality[0].Score)
}

func TestApply_NilSliceIsUntouched(t *testing.T) {
	st := testState()
	st.Apply(Update{Coverage: []models.CoverageResult{{Filename: "a.py", CoveragePercent: 50}}})
	st.Apply(Update{CompletedTasks: []string{"quality"}})

	require.Len(t, st.Coverage, 1)
}

func TestApply_EmptySliceIsAWrite(t *testing.T) {
	st := testState()
	st.Apply(Update{Coverage: []models.CoverageResult{{Filename: "a.py"}}})
	st.Apply(Update{Coverage: []models.CoverageResult{}})

	assert.NotNil(t, st.Coverage)
	assert.Empty(t, st.Coverage)
}

func TestApply_MarkersAreAdditive(t *testing.T) {
	st := testState()
	st.Apply(Completed("security"))
	st.Apply(Completed("quality"))
	st.Apply(Completed("security"))

	assert.Equal(t, []string{"security", "quality"}, st.CompletedTasks)
}

func TestApply_AppendKeepsProducerOrder(t *testing.T) {
	st := testState()
	st.Apply(Update{Warnings: []string{"w1", "w2"}})
	st.Apply(Update{Warnings: []string{"w1"}})
	st.Apply(Update{Notifications: []models.Notification{{Event: models.EventReviewStarted}}})
	st.Apply(Update{Notifications: []models.Notification{{Event: models.EventReviewStarted}}})

	assert.Equal(t, []string{"w1", "w2", "w1"}, st.Warnings)
	assert.Len(t, st.Notifications, 2)
}

func TestApply_DoesNotAliasUpdate(t *testing.T) {
	st := testState()
	results := []models.SecurityResult{{Filename: "a.py", Score: 10}}
	st.Apply(Update{Security: results})

	results[0].Score = 0
	assert.Equal(t, 10.0, st.Security[0].Score)
}

func TestUpdate_Touched(t *testing.T) {
	u := Update{
		AIReviews:      []models.AIReview{},
		CompletedTasks: []string{"ai_review"},
	}
	assert.Equal(t, []Field{FieldAIReviews, FieldCompletedTasks}, u.Touched())
	assert.Equal(t, []Field{FieldCompletedTasks}, u.without(FieldAIReviews).Touched())
	assert.Empty(t, Update{}.Touched())
}

func TestSnapshot_IsIndependent(t *testing.T) {
	st := testState()
	st.Apply(Update{Security: []models.SecurityResult{{Filename: "a.py", Score: 10}}})
	st.Summary = &models.Summary{Recommendation: models.RecommendApprove}

	snap := st.Snapshot()
	snap.Files[0].Filename = "changed.py"
	snap.Security[0].Score = 1
	snap.Summary.Recommendation = models.RecommendReject
	snap.CompletedTasks = append(snap.CompletedTasks, "x")

	assert.Equal(t, "a.py", st.Files[0].Filename)
	assert.Equal(t, 10.0, st.Security[0].Score)
	assert.Equal(t, models.RecommendApprove, st.Summary.Recommendation)
	assert.Empty(t, st.CompletedTasks)
}

func TestNewState(t *testing.T) {
	st := NewState(models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7})

	assert.Regexp(t, `^REV-\d{8}-[0-9A-F]{8}$`, st.ID)
	assert.Equal(t, StageStarted, st.Stage)
	assert.Empty(t, st.Security)
	assert.Empty(t, st.CompletedTasks)
	assert.Contains(t, st.String(), "acme/widgets#7")

	other := NewState(models.ChangeRef{})
	assert.NotEqual(t, st.ID, other.ID)
}

func TestStageTerminal(t *testing.T) {
	for _, s := range []Stage{StageCompleted, StageEscalated, StageError} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []Stage{StageStarted, StageDetecting, StageParallelAnalysis, StageCoordinating, StageDeciding, StageReporting} {
		assert.False(t, s.Terminal(), s)
	}
}
