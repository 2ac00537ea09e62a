// Package repository defines the contract between the batch engine and a
// remote repository host: read a file at a branch tip, write it back guarded by
// the hash it was read at.
package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict is returned by PutFileContent when the file changed since it
	// was read (the expected SHA is stale).
	ErrConflict = errors.New("conflict")
)

// StatusError is any other non-success response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.Code)
	if text == "" {
		text = "unexpected status"
	}
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.Code, text, e.Message)
	}
	return fmt.Sprintf("%d %s", e.Code, text)
}

// ErrorForStatus maps an HTTP status to the error taxonomy above. It returns
// nil for 2xx codes.
func ErrorForStatus(code int, message string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return wrapMessage(ErrNotFound, message)
	case code == http.StatusUnauthorized:
		return wrapMessage(ErrUnauthorized, message)
	case code == http.StatusConflict:
		return wrapMessage(ErrConflict, message)
	default:
		return &StatusError{Code: code, Message: message}
	}
}

func wrapMessage(base error, message string) error {
	if message == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, message)
}

// Ref identifies one file at one branch of one repository.
type Ref struct {
	// Repository is "owner/name".
	Repository string
	Branch     string
	Path       string
}

// Key is the run-scoped cache key of the file.
func (r Ref) Key() string {
	return r.Repository + ":" + r.Branch + ":" + r.Path
}

func (r Ref) String() string {
	return fmt.Sprintf("%s@%s:%s", r.Repository, r.Branch, r.Path)
}

// File is the content of a Ref plus the opaque hash it was read at.
type File struct {
	Content []byte
	SHA     string
}

type Committer struct {
	Name  string
	Email string
}

// Commit describes one write.
type Commit struct {
	Content     []byte
	ExpectedSHA string
	Committer   Committer
	Message     string
}

// WriteResult reports what the host recorded for a write.
type WriteResult struct {
	// ContentSHA is the new hash of the file.
	ContentSHA string
	// CommitSHA identifies the commit created by the write, when known.
	CommitSHA string
	// CommitURL links to the commit, when known.
	CommitURL string
}

// Client is implemented by repository hosts.
type Client interface {
	GetFileContent(ctx context.Context, ref Ref) (File, error)
	PutFileContent(ctx context.Context, ref Ref, commit Commit) (WriteResult, error)
}
