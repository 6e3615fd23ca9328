package git

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewpipe/internal/models"
)

// fakeGH answers gh api calls from a table keyed by the endpoint argument.
type fakeGH struct {
	responses map[string]string
	calls     [][]string
}

func (f *fakeGH) run(_ context.Context, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	endpoint := args[len(args)-1]
	if out, ok := f.responses[endpoint]; ok {
		return out, nil
	}
	return "", errors.New("gh api " + endpoint + ": HTTP 404")
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestGitHubProvider_Fetch(t *testing.T) {
	gh := &fakeGH{responses: map[string]string{
		"repos/acme/widgets/pulls/7": `{"number": 7, "title": "Add login", "body": "Adds the login form",
			"state": "open", "user": {"login": "dev"}, "head": {"ref": "login", "sha": "abc123"},
			"base": {"ref": "main"}, "html_url": "https://github.com/acme/widgets/pull/7"}`,
		"repos/acme/widgets/pulls/7/files": `[{"filename": "app/views.py", "status": "modified", "additions": 3, "deletions": 1, "patch": "@@"},
			{"filename": "old.py", "status": "removed"},
			{"filename": "README.md", "status": "modified"}]
			[{"filename": "app/forms.py", "status": "added", "additions": 10},
			{"filename": "app/missing.py", "status": "added"}]`,
		"repos/acme/widgets/contents/app/views.py?ref=abc123": `{"encoding": "base64", "content": "` + b64("def index():\n    return 1\n") + `"}`,
		"repos/acme/widgets/contents/app/forms.py?ref=abc123": `{"encoding": "base64", "content": "` + b64("class LoginForm:\n    pass\n") + `"}`,
	}}
	p := &GitHubProvider{run: gh.run}

	cs, err := p.Fetch(context.Background(), models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 7})
	require.NoError(t, err)

	assert.Equal(t, "Add login", cs.Details.Title)
	assert.Equal(t, "dev", cs.Details.Author)
	assert.Equal(t, "login", cs.Details.HeadBranch)
	assert.Equal(t, "main", cs.Details.BaseBranch)
	assert.Equal(t, "Adds the login form", cs.Details.Description)

	require.Len(t, cs.Files, 2)
	assert.Equal(t, "app/views.py", cs.Files[0].Filename)
	assert.Equal(t, models.FileStatusModified, cs.Files[0].Status)
	assert.Equal(t, 3, cs.Files[0].Additions)
	assert.Equal(t, "def index():\n    return 1\n", cs.Files[0].Content)
	assert.Equal(t, "app/forms.py", cs.Files[1].Filename)
	assert.Equal(t, models.FileStatusAdded, cs.Files[1].Status)
}

func TestGitHubProvider_Hostname(t *testing.T) {
	gh := &fakeGH{responses: map[string]string{
		"repos/acme/widgets/pulls/1": `{"number": 1}`,
	}}
	p := &GitHubProvider{Hostname: "github.example.com", run: gh.run}

	_, err := p.PullRequest(context.Background(), models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 1})
	require.NoError(t, err)
	require.Len(t, gh.calls, 1)
	assert.Equal(t, []string{"api", "--hostname", "github.example.com", "repos/acme/widgets/pulls/1"}, gh.calls[0])
}

func TestGitHubProvider_FetchErrors(t *testing.T) {
	ref := models.ChangeRef{Owner: "acme", Repo: "widgets", Number: 9}

	_, err := (&GitHubProvider{run: (&fakeGH{}).run}).Fetch(context.Background(), ref)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch pull request")

	gh := &fakeGH{responses: map[string]string{
		"repos/acme/widgets/pulls/9":       `{"number": 9}`,
		"repos/acme/widgets/pulls/9/files": `not json`,
	}}
	_, err = (&GitHubProvider{run: gh.run}).Fetch(context.Background(), ref)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parse pull request files"))
}

func TestFileContent_PathEscaping(t *testing.T) {
	gh := &fakeGH{responses: map[string]string{
		"repos/acme/widgets/contents/my%20dir/a.py?ref=feature%2Fx": `{"encoding": "utf-8", "content": "x = 1\n"}`,
	}}
	p := &GitHubProvider{run: gh.run}
	content, err := p.FileContent(context.Background(), models.ChangeRef{Owner: "acme", Repo: "widgets"}, "my dir/a.py", "feature/x")
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", content)
}
