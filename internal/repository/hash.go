package repository

import "github.com/go-git/go-git/v5/plumbing"

// BlobSHA returns the git blob hash of content. It is the value GitHub reports
// as a file's "sha" and expects back as the precondition of a write.
func BlobSHA(content []byte) string {
	return plumbing.ComputeHash(plumbing.BlobObject, content).String()
}
