package models

import "fmt"

// ChangeDetails describes the change request under review.
type ChangeDetails struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	State       string `json:"state"`
	HeadBranch  string `json:"head_branch"`
	HeadSHA     string `json:"head_sha"`
	BaseBranch  string `json:"base_branch"`
	URL         string `json:"url"`
	CreatedAt   string `json:"created_at"`
}

// FileStatus is the git-level change status of a file.
type FileStatus string

const (
	FileStatusAdded    FileStatus = "added"
	FileStatusModified FileStatus = "modified"
	FileStatusDeleted  FileStatus = "deleted"
	FileStatusRenamed  FileStatus = "renamed"
)

// FileData is one changed file with its content at the head revision.
type FileData struct {
	Filename  string     `json:"filename"`
	Status    FileStatus `json:"status"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Patch     string     `json:"patch,omitempty"`
	Content   string     `json:"content"`
}

// ChangeSet is what a change-set provider returns for a review.
type ChangeSet struct {
	Details ChangeDetails
	Files   []FileData
}

// ChangeRef identifies a change request. Number is 0 for local reviews.
type ChangeRef struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
}

func (r ChangeRef) String() string {
	switch {
	case r.Owner == "" && r.Repo == "":
		return "local"
	case r.Number == 0:
		return r.Owner + "/" + r.Repo
	default:
		return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
	}
}

// Message is the rendered content of a notification.
type Message struct {
	Subject string
	Body    string
}
