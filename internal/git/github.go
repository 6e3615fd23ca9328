package git

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"strings"

	"github.com/joescharf/reviewpipe/internal/models"
	"github.com/joescharf/reviewpipe/internal/review"
)

// Runner executes a gh command and returns its stdout.
type Runner func(ctx context.Context, args ...string) (string, error)

func ghCmd(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "gh", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("gh %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("gh %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// GitHubProvider fetches pull requests through the gh CLI.
type GitHubProvider struct {
	// Hostname targets a GitHub Enterprise host. Empty means github.com.
	Hostname   string
	Extensions []string
	Logger     review.Logger

	run Runner
}

// NewGitHubProvider returns a provider that shells out to gh.
func NewGitHubProvider(hostname string, exts []string, log review.Logger) *GitHubProvider {
	return &GitHubProvider{Hostname: hostname, Extensions: exts, Logger: log, run: ghCmd}
}

type pullRaw struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	User   struct {
		Login string `json:"login"`
	} `json:"user"`
	Head struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	HTMLURL   string `json:"html_url"`
	CreatedAt string `json:"created_at"`
}

type pullFileRaw struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

type contentRaw struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func (p *GitHubProvider) api(ctx context.Context, args ...string) (string, error) {
	full := []string{"api"}
	if p.Hostname != "" {
		full = append(full, "--hostname", p.Hostname)
	}
	full = append(full, args...)
	run := p.run
	if run == nil {
		run = ghCmd
	}
	return run(ctx, full...)
}

// Fetch implements review.ChangeSetProvider. Deleted files and files with
// other extensions are skipped, as are files whose content cannot be read at
// the head revision.
func (p *GitHubProvider) Fetch(ctx context.Context, ref models.ChangeRef) (*models.ChangeSet, error) {
	details, err := p.PullRequest(ctx, ref)
	if err != nil {
		return nil, err
	}

	files, err := p.changedFiles(ctx, ref)
	if err != nil {
		return nil, err
	}

	head := details.HeadSHA
	if head == "" {
		head = details.HeadBranch
	}
	cs := &models.ChangeSet{Details: *details}
	for _, f := range files {
		content, err := p.FileContent(ctx, ref, f.Filename, head)
		if err != nil {
			if p.Logger != nil {
				p.Logger.Warning("could not fetch %s at %s: %v", f.Filename, head, err)
			}
			continue
		}
		f.Content = content
		cs.Files = append(cs.Files, f)
	}
	return cs, nil
}

// PullRequest returns the details of one pull request.
func (p *GitHubProvider) PullRequest(ctx context.Context, ref models.ChangeRef) (*models.ChangeDetails, error) {
	out, err := p.api(ctx, fmt.Sprintf("repos/%s/%s/pulls/%d", ref.Owner, ref.Repo, ref.Number))
	if err != nil {
		return nil, fmt.Errorf("fetch pull request: %w", err)
	}
	var raw pullRaw
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("parse pull request: %w", err)
	}
	return &models.ChangeDetails{
		Number:      raw.Number,
		Title:       raw.Title,
		Description: raw.Body,
		Author:      raw.User.Login,
		State:       raw.State,
		HeadBranch:  raw.Head.Ref,
		HeadSHA:     raw.Head.SHA,
		BaseBranch:  raw.Base.Ref,
		URL:         raw.HTMLURL,
		CreatedAt:   raw.CreatedAt,
	}, nil
}

func (p *GitHubProvider) changedFiles(ctx context.Context, ref models.ChangeRef) ([]models.FileData, error) {
	out, err := p.api(ctx, "--paginate", fmt.Sprintf("repos/%s/%s/pulls/%d/files", ref.Owner, ref.Repo, ref.Number))
	if err != nil {
		return nil, fmt.Errorf("fetch pull request files: %w", err)
	}

	// --paginate prints one JSON array per page.
	var raw []pullFileRaw
	dec := json.NewDecoder(strings.NewReader(out))
	for {
		var page []pullFileRaw
		if err := dec.Decode(&page); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parse pull request files: %w", err)
		}
		raw = append(raw, page...)
	}

	var files []models.FileData
	for _, f := range raw {
		status := fileStatus(f.Status)
		if status == models.FileStatusDeleted || !Reviewable(f.Filename, p.Extensions) {
			continue
		}
		files = append(files, models.FileData{
			Filename:  f.Filename,
			Status:    status,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Patch:     f.Patch,
		})
	}
	return files, nil
}

// FileContent returns the content of path at ref.
func (p *GitHubProvider) FileContent(ctx context.Context, ref models.ChangeRef, path, at string) (string, error) {
	endpoint := fmt.Sprintf("repos/%s/%s/contents/%s", ref.Owner, ref.Repo, escapePath(path))
	if at != "" {
		endpoint += "?ref=" + url.QueryEscape(at)
	}
	out, err := p.api(ctx, endpoint)
	if err != nil {
		return "", err
	}
	var raw contentRaw
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return "", fmt.Errorf("parse content: %w", err)
	}
	if raw.Encoding != "base64" {
		return raw.Content, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(raw.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode content: %w", err)
	}
	return string(bytes.ToValidUTF8(data, []byte("�"))), nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func fileStatus(s string) models.FileStatus {
	switch s {
	case "added":
		return models.FileStatusAdded
	case "removed":
		return models.FileStatusDeleted
	case "renamed", "copied":
		return models.FileStatusRenamed
	default:
		return models.FileStatusModified
	}
}
