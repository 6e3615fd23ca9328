package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/reviewpipe/internal/git"
	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/review"
	"github.com/joescharf/reviewpipe/internal/store"
)

func TestParsePRArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want models.ChangeRef
	}{
		{"owner/repo", []string{"acme/widgets", "42"}, models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 42}},
		{"hash number", []string{"acme/widgets", "#7"}, models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7}},
		{"repo url", []string{"https://github.com/acme/widgets.git", "3"}, models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 3}},
		{"pr url", []string{"https://github.com/acme/widgets/pull/19/files"}, models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 19}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePRArgs(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePRArgs_Invalid(t *testing.T) {
	for _, args := range [][]string{
		{"acme/widgets", "abc"},
		{"acme/widgets", "0"},
		{"acme/widgets", "-3"},
		{"acme/widgets"},
		{"not-a-repo", "1"},
	} {
		_, err := parsePRArgs(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestCheckLocalFiles(t *testing.T) {
	testEnv(t)
	dir := t.TempDir()
	py := filepath.Join(dir, "app.py")
	md := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(py, []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(md, []byte("# hi\n"), 0o644))

	exts := []string{".py", ".go"}
	assert.NoError(t, checkLocalFiles([]string{py, md}, exts))

	err := checkLocalFiles([]string{md}, exts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reviewable files")

	assert.Error(t, checkLocalFiles([]string{filepath.Join(dir, "missing.py")}, exts))
	assert.Error(t, checkLocalFiles([]string{dir}, exts))
}

func TestConfigHelpers(t *testing.T) {
	testEnv(t)

	assert.Equal(t, review.DefaultThresholds(), thresholdsFromConfig())
	assert.Equal(t, 5*time.Minute, taskTimeoutFromConfig())
	assert.Equal(t, []string{".py", ".go"}, configuredExtensions())

	viper.Set("analysis.task_timeout", "0")
	assert.Equal(t, time.Duration(-1), taskTimeoutFromConfig(), "0 disables forced completion")

	viper.Set("analysis.extensions", ".py, .rs")
	assert.Equal(t, []string{".py", ".rs"}, configuredExtensions())

	viper.Set("thresholds.lint", 9.5)
	assert.Equal(t, 9.5, thresholdsFromConfig().Lint)
}

func TestBuildNotifier(t *testing.T) {
	testEnv(t)

	n, err := buildNotifier()
	require.NoError(t, err)
	assert.NotNil(t, n)

	viper.Set("email.enabled", true)
	_, err = buildNotifier()
	assert.Error(t, err, "email enabled without a server")

	viper.Set("email.smtp_server", "smtp.example.com")
	viper.Set("email.from", "bot@example.com")
	viper.Set("email.to", []string{"dev@example.com"})
	n, err = buildNotifier()
	require.NoError(t, err)
	assert.NotNil(t, n)
}

func finishedState() *review.State {
	st := review.NewState(models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 5})
	st.Files = []models.FileData{{Filename: "app.py"}}
	st.Security = []models.SecurityResult{{Filename: "app.py", Score: 10}}
	st.Quality = []models.QualityResult{{Filename: "app.py", Score: 8.5}}
	st.Summary = &models.Summary{Recommendation: models.RecommendApprove, Priority: models.PriorityLow}
	st.CriticalReason = review.NoCriticalIssues
	st.SetStage(review.StageCompleted)
	return st
}

func TestRenderReview_Text(t *testing.T) {
	testEnv(t)
	out := ui.Out.(*bytes.Buffer)

	require.NoError(t, renderReview(out, finishedState(), review.DefaultThresholds(), "text"))
	text := out.String()
	assert.Contains(t, text, "Recommendation:")
	assert.Contains(t, text, "APPROVE")
	assert.Contains(t, text, "Security")
	assert.Contains(t, text, "Documentation")
	assert.Contains(t, text, review.NoCriticalIssues)
}

func TestRenderReview_JSONAndYAML(t *testing.T) {
	testEnv(t)
	out := ui.Out.(*bytes.Buffer)
	st := finishedState()

	require.NoError(t, renderReview(out, st, review.DefaultThresholds(), "json"))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, st.ID, decoded["review_id"])
	assert.Equal(t, "completed", decoded["stage"])

	out.Reset()
	require.NoError(t, renderReview(out, st, review.DefaultThresholds(), "yaml"))
	var y map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &y))
	assert.Equal(t, st.ID, y["review_id"])
	assert.Equal(t, false, y["has_critical_issues"])
}

func TestReviewRun_InvalidFormat(t *testing.T) {
	testEnv(t)
	reviewFormat = "xml"
	t.Cleanup(func() { reviewFormat = "text" })

	err := reviewRun(reviewFilesCmd, func() review.ChangeSetProvider {
		t.Fatal("provider built for an invalid format")
		return nil
	}, models.ChangeRef{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestReviewRun_JSONStdoutIsParseable(t *testing.T) {
	dir := testEnv(t)
	viper.Set("quality.pylint_path", filepath.Join(dir, "no-such-pylint"))
	t.Setenv("ANTHROPIC_API_KEY", "")
	stdout := ui.Out.(*bytes.Buffer)
	stderr := ui.ErrOut.(*bytes.Buffer)
	reviewFormat = "json"
	t.Cleanup(func() { reviewFormat = "text" })

	py := filepath.Join(dir, "calc.py")
	require.NoError(t, os.WriteFile(py, []byte("def add(a, b):\n    \"\"\"Add.\"\"\"\n    return a + b\n"), 0o644))

	err := reviewRun(reviewFilesCmd, func() review.ChangeSetProvider {
		return &git.LocalProvider{Paths: []string{py}, Extensions: configuredExtensions()}
	}, models.ChangeRef{})
	require.NoError(t, err)
	t.Cleanup(func() {
		if dataStore != nil {
			_ = dataStore.Close()
			dataStore = nil
		}
	})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded), stdout.String())
	assert.NotEmpty(t, decoded["review_id"])
	assert.Contains(t, stderr.String(), "Starting review")
	assert.Same(t, stdout, ui.Out, "ui restored after the run")
}

func TestRunReview_LocalFilesArchived(t *testing.T) {
	dir := testEnv(t)
	viper.Set("quality.pylint_path", filepath.Join(dir, "no-such-pylint"))
	t.Setenv("ANTHROPIC_API_KEY", "")

	py := filepath.Join(dir, "calc.py")
	require.NoError(t, os.WriteFile(py, []byte(`def add(a, b):
    """Add two numbers."""
    return a + b
`), 0o644))

	provider := &git.LocalProvider{Paths: []string{py}, Extensions: configuredExtensions()}
	st, err := runReview(context.Background(), provider, models.ChangeRef{})
	require.NoError(t, err)
	require.True(t, st.Stage.Terminal())
	assert.NotEqual(t, review.StageError, st.Stage, st.Error)
	assert.Len(t, st.CompletedTasks, 5)

	s, err := getStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(); dataStore = nil })

	recs, err := s.ListReviews(context.Background(), store.ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, st.ID, recs[0].ReviewID)
	assert.Equal(t, 1, recs[0].FilesReviewed)
}

func TestRunReview_HistoryDisabled(t *testing.T) {
	dir := testEnv(t)
	viper.Set("history.enabled", false)
	viper.Set("quality.pylint_path", filepath.Join(dir, "no-such-pylint"))
	t.Setenv("ANTHROPIC_API_KEY", "")

	py := filepath.Join(dir, "calc.py")
	require.NoError(t, os.WriteFile(py, []byte("x = 1\n"), 0o644))

	_, err := runReview(context.Background(), &git.LocalProvider{Paths: []string{py}}, models.ChangeRef{})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "reviews.db"))
	assert.True(t, os.IsNotExist(err), "no database is created when history is disabled")
}
