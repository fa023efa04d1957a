package domain

import (
	"context"
	"time"
)

// RepoOwner identifies the account that owns a repository.
type RepoOwner struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// RepoSummary is one row of a repository listing.
type RepoSummary struct {
	ID          int64     `json:"id"`
	Owner       RepoOwner `json:"owner"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name,omitempty"`
	Description string    `json:"description,omitempty"`
	Private     bool      `json:"private,omitempty"`
	HTMLURL     string    `json:"html_url,omitempty"`
}

// RepoDetail is the full metadata shown by the repository info view.
type RepoDetail struct {
	Name             string    `json:"name"`
	FullName         string    `json:"full_name"`
	Owner            RepoOwner `json:"owner"`
	Description      string    `json:"description,omitempty"`
	Language         string    `json:"language,omitempty"`
	License          string    `json:"license,omitempty"`
	HTMLURL          string    `json:"html_url"`
	CreatedAt        time.Time `json:"created_at"`
	PushedAt         time.Time `json:"pushed_at"`
	SubscribersCount int       `json:"subscribers_count"`
	ForksCount       int       `json:"forks_count"`
	StargazersCount  int       `json:"stargazers_count"`
	WatchersCount    int       `json:"watchers_count"`
	OpenIssuesCount  int       `json:"open_issues_count"`
}

// Node types in a repository tree.
const (
	NodeFile = "file"
	NodeDir  = "dir"
)

// ContentEntry is one item of a directory listing.
type ContentEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	Size int    `json:"size"`
}

// FileContent is a single decoded file.
type FileContent struct {
	Path    string
	Content []byte
}

// ContentResult is the answer to a contents request: either a file or a
// directory listing in upstream order.
type ContentResult struct {
	File    *FileContent
	Entries []ContentEntry
}

// IsDir reports whether the result is a directory listing.
func (r ContentResult) IsDir() bool { return r.File == nil }

// RepositoryProvider is the source of repository data. Every call is
// authenticated with the caller's access token.
type RepositoryProvider interface {
	ListRepositories(ctx context.Context, token string) ([]RepoSummary, error)
	GetRepository(ctx context.Context, token, owner, repo string) (*RepoDetail, error)
	GetContent(ctx context.Context, token, owner, repo, path string) (*ContentResult, error)
}
