package engine

import (
	"errors"
	"gitops-replacer/internal/repository"
	"strings"
)

// presentRepositoryError turns a repository client error into the message
// reported for a target. Known failures get a hint about the likely cause;
// everything else is passed through with the request line scrubbed unless
// verbose is set.
func presentRepositoryError(err error, verbose bool) string {
	if err == nil {
		return "unknown error"
	}

	full := strings.TrimSpace(err.Error())
	detail := full
	if !verbose {
		if scrubbed := scrubRequestFromErrorString(full); scrubbed != "" {
			detail = scrubbed
		}
	}

	var hint string
	switch {
	case errors.Is(err, repository.ErrUnauthorized):
		hint = "401 unauthorized - maybe your token does not have access to the repository"
	case errors.Is(err, repository.ErrNotFound):
		hint = "404 not found - make sure that the repository, branch and file exist"
	case errors.Is(err, repository.ErrConflict):
		hint = "409 conflict - the file changed since it was read"
	}

	switch {
	case hint == "":
		return detail
	case verbose:
		return hint + " (" + detail + ")"
	default:
		return hint
	}
}

func scrubRequestFromErrorString(s string) string {
	// Transport errors from go-github look like:
	//   GET https://api.github.com/repos/acme/deploy/contents/x?ref=main: dial tcp: ...
	// Drop everything up to and including the URL.
	for _, m := range []string{"GET ", "PUT ", "HEAD ", "POST ", "PATCH ", "DELETE "} {
		if !strings.HasPrefix(s, m) {
			continue
		}
		rest := s[len(m):]
		if i := strings.Index(rest, ": "); i >= 0 {
			return strings.TrimSpace(rest[i+2:])
		}
		return ""
	}
	return ""
}
