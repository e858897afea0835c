package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v66/github"
	log "github.com/sirupsen/logrus"
)

// GitHub stores the vault in a GitHub repository via the contents API.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	branch string
}

// NewGitHub builds a GitHub-backed vault. repo is "owner/name".
func NewGitHub(token, repo, branch string) (*GitHub, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("vault repo must be owner/name, got %q", repo)
	}
	if branch == "" {
		branch = "main"
	}
	return &GitHub{
		client: github.NewClient(nil).WithAuthToken(token),
		owner:  owner,
		repo:   name,
		branch: branch,
	}, nil
}

// WithClient overrides the API client, for tests pointed at a fake server.
func (g *GitHub) WithClient(client *github.Client) *GitHub {
	g.client = client
	return g
}

func (g *GitHub) Get(ctx context.Context, path string) (*File, error) {
	fc, _, resp, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path, &github.RepositoryContentGetOptions{Ref: g.branch})
	if err != nil {
		if isNotFound(resp, err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	if fc == nil {
		// Path is a directory.
		return nil, nil
	}
	content, err := fc.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &File{Content: content, SHA: fc.GetSHA()}, nil
}

func (g *GitHub) Put(ctx context.Context, path, content, message, sha string) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
		Branch:  github.String(g.branch),
	}

	var (
		res *github.RepositoryContentResponse
		err error
	)
	if sha != "" {
		opts.SHA = github.String(sha)
		res, _, err = g.client.Repositories.UpdateFile(ctx, g.owner, g.repo, path, opts)
	} else {
		res, _, err = g.client.Repositories.CreateFile(ctx, g.owner, g.repo, path, opts)
	}
	if err != nil {
		return "", fmt.Errorf("put %s: %w", path, err)
	}
	commit := res.GetSHA()
	log.WithFields(log.Fields{"path": path, "commit": commit}).Debug("vault file written")
	return commit, nil
}

func (g *GitHub) Append(ctx context.Context, path, content, message string) (string, error) {
	existing, err := g.Get(ctx, path)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return g.Put(ctx, path, content, message, "")
	}
	return g.Put(ctx, path, existing.Content+content, message, existing.SHA)
}

func (g *GitHub) Exists(ctx context.Context, path string) (bool, error) {
	f, err := g.Get(ctx, path)
	if err != nil {
		return false, err
	}
	return f != nil, nil
}

func (g *GitHub) List(ctx context.Context, folder string) ([]string, error) {
	_, dir, resp, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, folder, &github.RepositoryContentGetOptions{Ref: g.branch})
	if err != nil {
		if isNotFound(resp, err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	paths := make([]string, 0, len(dir))
	for _, item := range dir {
		if item.GetType() == "file" {
			paths = append(paths, item.GetPath())
		}
	}
	return paths, nil
}

func isNotFound(resp *github.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}
