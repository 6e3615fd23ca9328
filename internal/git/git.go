// Package git provides the change-set providers that feed a review: GitHub
// pull requests through the gh CLI, a local git diff and plain local files.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joescharf/reviewpipe/internal/models"
)

// DefaultExtensions are the file extensions reviewed when none are configured.
var DefaultExtensions = []string{".py", ".go"}

// ErrNoChanges is returned when a diff has no reviewable files.
var ErrNoChanges = errors.New("no reviewable changes")

func gitCmd(ctx context.Context, path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.CommandContext(ctx, "git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Reviewable reports whether filename has one of exts. An empty exts means
// DefaultExtensions.
func Reviewable(filename string, exts []string) bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if ext == e {
			return true
		}
	}
	return false
}

// ChangedFile is one entry of `git diff --name-status`.
type ChangedFile struct {
	Path    string
	OldPath string
	Status  models.FileStatus
}

// ParseNameStatus parses the output of `git diff --name-status`.
func ParseNameStatus(output string) []ChangedFile {
	var files []ChangedFile
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Split(strings.TrimSpace(line), "\t")
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		cf := ChangedFile{Path: fields[len(fields)-1]}
		switch fields[0][0] {
		case 'A':
			cf.Status = models.FileStatusAdded
		case 'D':
			cf.Status = models.FileStatusDeleted
		case 'R', 'C':
			cf.Status = models.FileStatusRenamed
			if len(fields) == 3 {
				cf.OldPath = fields[1]
			}
		default:
			cf.Status = models.FileStatusModified
		}
		files = append(files, cf)
	}
	return files
}

// parseNumstat maps paths to added and deleted line counts from `git diff --numstat`.
func parseNumstat(output string) map[string][2]int {
	stats := make(map[string][2]int)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			continue
		}
		add, _ := strconv.Atoi(fields[0])
		del, _ := strconv.Atoi(fields[1])
		stats[fields[len(fields)-1]] = [2]int{add, del}
	}
	return stats
}

// DiffProvider reviews the working tree of a local checkout against a base branch.
type DiffProvider struct {
	Dir        string
	Base       string
	Extensions []string
}

// Fetch implements review.ChangeSetProvider. ref is ignored.
func (p *DiffProvider) Fetch(ctx context.Context, _ models.ChangeRef) (*models.ChangeSet, error) {
	dir := p.Dir
	if dir == "" {
		dir = "."
	}
	root, err := gitCmd(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, err
	}
	base := p.Base
	if base == "" {
		base = "main"
	}

	nameStatus, err := gitCmd(ctx, root, "diff", "--name-status", "-M", base)
	if err != nil {
		return nil, err
	}
	numstat, err := gitCmd(ctx, root, "diff", "--numstat", "-M", base)
	if err != nil {
		return nil, err
	}
	stats := parseNumstat(numstat)

	cs := &models.ChangeSet{Details: models.ChangeDetails{BaseBranch: base, State: "local"}}
	cs.Details.HeadBranch, _ = gitCmd(ctx, root, "rev-parse", "--abbrev-ref", "HEAD")
	cs.Details.HeadSHA, _ = gitCmd(ctx, root, "rev-parse", "HEAD")
	cs.Details.Author, _ = gitCmd(ctx, root, "config", "user.name")
	cs.Details.Title = fmt.Sprintf("Local changes on %s vs %s", orDefault(cs.Details.HeadBranch, "HEAD"), base)

	for _, cf := range ParseNameStatus(nameStatus) {
		if cf.Status == models.FileStatusDeleted || !Reviewable(cf.Path, p.Extensions) {
			continue
		}
		content, err := os.ReadFile(filepath.Join(root, cf.Path))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", cf.Path, err)
		}
		st := stats[cf.Path]
		cs.Files = append(cs.Files, models.FileData{
			Filename:  cf.Path,
			Status:    cf.Status,
			Additions: st[0],
			Deletions: st[1],
			Content:   string(content),
		})
	}
	if len(cs.Files) == 0 {
		return nil, fmt.Errorf("diff against %s: %w", base, ErrNoChanges)
	}
	return cs, nil
}

// LocalProvider reviews a fixed list of local files.
type LocalProvider struct {
	Paths      []string
	Extensions []string
}

// Fetch implements review.ChangeSetProvider. Files with other extensions are
// skipped; unreadable files are an error.
func (p *LocalProvider) Fetch(_ context.Context, _ models.ChangeRef) (*models.ChangeSet, error) {
	cs := &models.ChangeSet{Details: models.ChangeDetails{
		Title: "Local file review",
		State: "local",
	}}
	cs.Details.Author = os.Getenv("USER")

	for _, path := range p.Paths {
		if !Reviewable(path, p.Extensions) {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		cs.Files = append(cs.Files, models.FileData{
			Filename:  filepath.ToSlash(path),
			Status:    models.FileStatusModified,
			Additions: countLines(string(content)),
			Content:   string(content),
		})
	}
	return cs, nil
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// ParseRepoURL returns owner and repo from "owner/repo", an HTTPS or SSH
// GitHub URL, or a pull request URL.
func ParseRepoURL(s string) (owner, repo string, err error) {
	s = strings.TrimSpace(s)

	// Handle SSH: git@github.com:owner/repo.git
	if strings.HasPrefix(s, "git@") {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("cannot parse SSH remote: %s", s)
		}
		s = parts[1]
	} else {
		for _, prefix := range []string{"https://", "http://"} {
			s = strings.TrimPrefix(s, prefix)
		}
		s = strings.TrimPrefix(s, "www.")
		s = strings.TrimPrefix(s, "github.com/")
	}

	segments := strings.Split(strings.Trim(s, "/"), "/")
	if len(segments) < 2 {
		return "", "", fmt.Errorf("cannot parse owner/repo from: %s", s)
	}
	owner, repo = segments[0], strings.TrimSuffix(segments[1], ".git")
	// GitHub owners never contain dots; a dotted first segment is another host.
	if owner == "" || repo == "" || strings.Contains(owner, ".") {
		return "", "", fmt.Errorf("cannot parse owner/repo from: %s", s)
	}
	return owner, repo, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
