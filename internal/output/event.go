package output

// Event is a lifecycle record for NDJSON streaming output.
//
// In NDJSON mode, sinks emit Events (one JSON object per line), including:
// - run.started
// - precheck.started
// - target.result
// - apply.started
// - run.finished
//
// JSON mode remains an aggregate of Result values.
type Event struct {
	Type string `json:"type"`
	*Result
	Targets  int    `json:"targets,omitempty"`
	Value    string `json:"value,omitempty"`
	Apply    bool   `json:"apply,omitempty"`
	Ref      string `json:"ref,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

const (
	EventRunStarted      = "run.started"
	EventPrecheckStarted = "precheck.started"
	EventTargetResult    = "target.result"
	EventApplyStarted    = "apply.started"
	EventRunFinished     = "run.finished"
)

func eventFromResult(r Result) Event {
	return Event{Type: EventTargetResult, Result: &r}
}
