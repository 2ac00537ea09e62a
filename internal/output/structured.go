package output

import (
	"encoding/json"
	"fmt"
	"io"
)

// structuredWriter implements the two machine-readable formats shared by the
// emit and file sinks:
//   - json: collects results and writes one JSON array in finish
//   - ndjson: streams every Result and Event as one JSON object per line
type structuredWriter struct {
	w       io.Writer
	format  string
	results []Result
}

func newStructuredWriter(w io.Writer, format string) (*structuredWriter, error) {
	if format != "json" && format != "ndjson" {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	return &structuredWriter{w: w, format: format}, nil
}

func (sw *structuredWriter) write(v any) error {
	if sw.format == "json" {
		// Lifecycle events are not part of the aggregate.
		if r, ok := v.(Result); ok {
			sw.results = append(sw.results, r)
		}
		return nil
	}

	var e Event
	switch t := v.(type) {
	case Event:
		e = t
	case Result:
		e = eventFromResult(t)
	default:
		return nil
	}
	if err := json.NewEncoder(sw.w).Encode(e); err != nil {
		return err
	}
	return flushIfPossible(sw.w)
}

func (sw *structuredWriter) finish() error {
	if sw.format != "json" {
		return nil
	}
	results := sw.results
	if results == nil {
		results = []Result{}
	}
	encoder := json.NewEncoder(sw.w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		return err
	}
	return flushIfPossible(sw.w)
}
