package engine

import "gitops-replacer/internal/output"

func exitCodeForRun(fatal, invalid, applyErrors bool) int {
	// Exit code contract:
	// 0 = every target was processed without error
	// 1 = one or more targets failed during apply
	// 2 = precheck rejected one or more targets, nothing was written
	// 3 = fatal error (run did not start)
	if fatal {
		return 3
	}
	if invalid {
		return 2
	}
	if applyErrors {
		return 1
	}
	return 0
}

// Outcome counts the decisions taken during one run.
type Outcome struct {
	Invalid   int
	Errors    int
	Skipped   int
	NoMarker  int
	Unchanged int
	Changed   int
	Applied   int
}

func (o *Outcome) add(r output.Result) {
	switch r.Status {
	case output.StatusInvalid:
		o.Invalid++
	case output.StatusError:
		o.Errors++
	case output.StatusSkipped:
		o.Skipped++
	case output.StatusNoMarker:
		o.NoMarker++
	case output.StatusUnchanged:
		o.Unchanged++
	case output.StatusChanged:
		o.Changed++
	case output.StatusApplied:
		o.Applied++
	}
}

// Failed reports whether the run counts as failed.
func (o Outcome) Failed() bool {
	return o.Invalid > 0 || o.Errors > 0
}

func (o Outcome) ExitCode() int {
	return exitCodeForRun(false, o.Invalid > 0, o.Errors > 0)
}
