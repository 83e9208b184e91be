package github

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
)

// FetchedDoc represents a markdown document fetched from GitHub
type FetchedDoc struct {
	Path    string // path within the repository
	Content string
	SHA     string // blob SHA
}

// Commit identifies the most recent change under the docs path.
type Commit struct {
	SHA  string
	Date time.Time
}

// Fetcher handles fetching documentation from GitHub repositories
type Fetcher struct {
	client   *Client
	owner    string
	repo     string
	basePath string
}

// NewFetcher creates a new document fetcher. An empty basePath means the
// repository root.
func NewFetcher(client *Client, owner, repo, basePath string) *Fetcher {
	return &Fetcher{
		client:   client,
		owner:    owner,
		repo:     repo,
		basePath: strings.Trim(basePath, "/"),
	}
}

// ListDocs recursively lists all markdown files under the base path. Returned
// paths are relative to the repository root.
func (f *Fetcher) ListDocs(ctx context.Context) ([]string, error) {
	return f.listDocsRecursive(ctx, f.basePath)
}

func (f *Fetcher) listDocsRecursive(ctx context.Context, dir string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %q: %w", dir, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}
		itemPath := path.Join(dir, *item.Name)

		switch *item.Type {
		case "file":
			if strings.HasSuffix(strings.ToLower(*item.Name), ".md") {
				docs = append(docs, itemPath)
			}
		case "dir":
			subDocs, err := f.listDocsRecursive(ctx, itemPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// FetchDoc fetches the content of a file by its repository path.
func (f *Fetcher) FetchDoc(ctx context.Context, filePath string) (*FetchedDoc, error) {
	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, filePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", filePath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("no file content returned for %s", filePath)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", filePath, err)
	}

	return &FetchedDoc{
		Path:    filePath,
		Content: content,
		SHA:     fileContent.GetSHA(),
	}, nil
}

// LatestCommit retrieves the most recent commit affecting the base path.
func (f *Fetcher) LatestCommit(ctx context.Context) (*Commit, error) {
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.owner, f.repo, &github.CommitsListOptions{
		Path:        f.basePath,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 {
		return nil, fmt.Errorf("no commits found for path %q", f.basePath)
	}

	c := commits[0]
	return &Commit{
		SHA:  c.GetSHA(),
		Date: c.GetCommit().GetCommitter().GetDate().Time,
	}, nil
}
