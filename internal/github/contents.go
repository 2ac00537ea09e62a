package github

import (
	"context"
	"errors"
	"fmt"
	"gitops-replacer/internal/repository"
	"net/http"
	"strings"

	"github.com/google/go-github/v81/github"
)

var _ repository.Client = (*Client)(nil)

// GetFileContent reads ref through the repository contents API. Files above
// the contents API size limit are read through the git blob API instead.
func (c *Client) GetFileContent(ctx context.Context, ref repository.Ref) (repository.File, error) {
	owner, name, err := splitRepository(ref.Repository)
	if err != nil {
		return repository.File{}, err
	}
	if err := c.budget.Acquire(ctx); err != nil {
		return repository.File{}, err
	}

	fc, dir, resp, err := c.Client.Repositories.GetContents(ctx, owner, name, ref.Path, &github.RepositoryContentGetOptions{Ref: ref.Branch})
	c.budget.UpdateFromResponse(responseOf(resp))
	if err != nil {
		return repository.File{}, classify(resp, err)
	}
	if fc == nil {
		if dir != nil {
			return repository.File{}, fmt.Errorf("%s is a directory", ref.Path)
		}
		return repository.File{}, fmt.Errorf("%s: empty contents response", ref.Path)
	}

	if fc.GetEncoding() == "none" {
		return c.getBlob(ctx, owner, name, fc.GetSHA())
	}
	content, err := fc.GetContent()
	if err != nil {
		return repository.File{}, fmt.Errorf("decode %s: %w", ref.Path, err)
	}
	return repository.File{Content: []byte(content), SHA: fc.GetSHA()}, nil
}

func (c *Client) getBlob(ctx context.Context, owner, name, sha string) (repository.File, error) {
	if err := c.budget.Acquire(ctx); err != nil {
		return repository.File{}, err
	}
	raw, resp, err := c.Client.Git.GetBlobRaw(ctx, owner, name, sha)
	c.budget.UpdateFromResponse(responseOf(resp))
	if err != nil {
		return repository.File{}, classify(resp, err)
	}
	return repository.File{Content: raw, SHA: sha}, nil
}

// PutFileContent writes commit.Content to ref. The write only succeeds if the
// file is still at commit.ExpectedSHA.
func (c *Client) PutFileContent(ctx context.Context, ref repository.Ref, commit repository.Commit) (repository.WriteResult, error) {
	owner, name, err := splitRepository(ref.Repository)
	if err != nil {
		return repository.WriteResult{}, err
	}
	if err := c.budget.Acquire(ctx); err != nil {
		return repository.WriteResult{}, err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(commit.Message),
		Content: commit.Content,
		SHA:     github.Ptr(commit.ExpectedSHA),
		Branch:  github.Ptr(ref.Branch),
	}
	if commit.Committer.Name != "" || commit.Committer.Email != "" {
		opts.Committer = &github.CommitAuthor{
			Name:  github.Ptr(commit.Committer.Name),
			Email: github.Ptr(commit.Committer.Email),
		}
	}

	res, resp, err := c.Client.Repositories.UpdateFile(ctx, owner, name, ref.Path, opts)
	c.budget.UpdateFromResponse(responseOf(resp))
	if err != nil {
		return repository.WriteResult{}, classify(resp, err)
	}

	out := repository.WriteResult{}
	if res != nil {
		out.ContentSHA = res.GetContent().GetSHA()
		out.CommitSHA = res.Commit.GetSHA()
		out.CommitURL = res.Commit.GetHTMLURL()
	}
	return out, nil
}

func splitRepository(full string) (string, string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(full), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository %q: expected OWNER/REPO", full)
	}
	return owner, name, nil
}

// classify maps a go-github error onto the repository error taxonomy.
func classify(resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	var er *github.ErrorResponse
	message := ""
	if errors.As(err, &er) {
		message = strings.TrimSpace(er.Message)
	}
	if resp != nil && resp.Response != nil {
		if mapped := repository.ErrorForStatus(resp.StatusCode, message); mapped != nil {
			return mapped
		}
	}
	return err
}

func responseOf(resp *github.Response) *http.Response {
	if resp == nil {
		return nil
	}
	return resp.Response
}
