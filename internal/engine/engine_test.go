package engine

import (
	"bytes"
	"context"
	"fmt"
	"gitops-replacer/internal/config"
	"gitops-replacer/internal/gate"
	"gitops-replacer/internal/output"
	"gitops-replacer/internal/repository"
	"strings"
	"testing"
)

type recorder struct {
	results []output.Result
	events  []output.Event
}

func (r *recorder) Write(v any) error {
	switch t := v.(type) {
	case output.Result:
		r.results = append(r.results, t)
	case output.Event:
		r.events = append(r.events, t)
	}
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) statuses() []output.Status {
	out := make([]output.Status, 0, len(r.results))
	for _, res := range r.results {
		out = append(out, res.Status)
	}
	return out
}

func (r *recorder) eventTypes() []string {
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

const webValues = `image:
  # gitops-replacer: web
  tag: "v1" # pinned
replicas: 2
`

func target(repo, file, dep string) config.Target {
	return config.Target{Repository: repo, Branch: "main", File: file, DepName: dep}
}

func newTestEngine(client repository.Client) (*Engine, *recorder, *bytes.Buffer) {
	rec := &recorder{}
	var log bytes.Buffer
	e := NewEngine(client)
	e.Log = &log
	e.sinks = []output.Sink{rec}
	return e, rec, &log
}

func testConfig(value string, apply bool) *config.Config {
	cfg := config.New()
	cfg.Run.Value = value
	cfg.Run.Apply = apply
	cfg.Output.NoConsole = true
	return cfg
}

func equalStatuses(got []output.Status, want ...output.Status) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRun_AppliesChange(t *testing.T) {
	mem := repository.NewMemory()
	web := target("acme/deploy", "apps/web/values.yaml", "web")
	mem.Set(web.Ref(), webValues)

	e, rec, _ := newTestEngine(mem)
	code := e.Run(context.Background(), testConfig("v2", true), []config.Target{web})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	got, _ := mem.Content(web.Ref())
	want := strings.Replace(webValues, `"v1"`, `"v2"`, 1)
	if got != want {
		t.Fatalf("unexpected content:\n%s\nwant:\n%s", got, want)
	}
	if !equalStatuses(rec.statuses(), output.StatusApplied) {
		t.Fatalf("unexpected statuses: %v", rec.statuses())
	}
	res := rec.results[0]
	if res.OldValue != "v1" || res.NewValue != "v2" || res.ContentSHA == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(mem.Gets) != 1 {
		t.Fatalf("expected a single fetch for precheck and apply, got %d", len(mem.Gets))
	}

	wantEvents := []string{output.EventRunStarted, output.EventPrecheckStarted, output.EventApplyStarted, output.EventRunFinished}
	if strings.Join(rec.eventTypes(), ",") != strings.Join(wantEvents, ",") {
		t.Fatalf("unexpected events: %v", rec.eventTypes())
	}
}

func TestRun_PreviewDoesNotWrite(t *testing.T) {
	mem := repository.NewMemory()
	web := target("acme/deploy", "apps/web/values.yaml", "web")
	mem.Set(web.Ref(), webValues)

	e, rec, _ := newTestEngine(mem)
	code := e.Run(context.Background(), testConfig("v2", false), []config.Target{web})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if len(mem.Puts) != 0 {
		t.Fatalf("preview must not write, got %d puts", len(mem.Puts))
	}
	if !equalStatuses(rec.statuses(), output.StatusChanged) {
		t.Fatalf("unexpected statuses: %v", rec.statuses())
	}
}

func TestRun_PrecheckFailureWritesNothing(t *testing.T) {
	mem := repository.NewMemory()
	web := target("acme/deploy", "apps/web/values.yaml", "web")
	api := target("acme/deploy", "apps/api/values.yaml", "api")
	secret := target("acme/private", "values.yaml", "web")
	mem.Set(web.Ref(), webValues)
	mem.Fail(secret.Ref(), repository.ErrUnauthorized)
	// api is never Set, so it reads as not found.

	e, rec, _ := newTestEngine(mem)
	code := e.Run(context.Background(), testConfig("v2", true), []config.Target{web, api, secret})
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if len(mem.Puts) != 0 {
		t.Fatalf("expected zero writes, got %d", len(mem.Puts))
	}
	if len(mem.Gets) != 3 {
		t.Fatalf("precheck must check every target, got %d reads", len(mem.Gets))
	}
	if !equalStatuses(rec.statuses(), output.StatusInvalid, output.StatusInvalid, output.StatusSkipped) {
		t.Fatalf("unexpected statuses: %v", rec.statuses())
	}
	if !strings.HasPrefix(rec.results[0].Message, "404 not found") {
		t.Errorf("unexpected not-found message: %q", rec.results[0].Message)
	}
	if !strings.HasPrefix(rec.results[1].Message, "401 unauthorized") {
		t.Errorf("unexpected unauthorized message: %q", rec.results[1].Message)
	}
	for _, ev := range rec.events {
		if ev.Type == output.EventApplyStarted {
			t.Fatalf("apply phase must not start after a failed precheck")
		}
	}
}

func TestRun_NoMarkerDoesNotFailRun(t *testing.T) {
	mem := repository.NewMemory()
	web := target("acme/deploy", "apps/web/values.yaml", "web")
	other := target("acme/deploy", "apps/web/values.yaml", "worker")
	api := target("acme/deploy", "apps/api/values.yaml", "api")
	mem.Set(web.Ref(), webValues)
	mem.Set(api.Ref(), "# gitops-replacer: api\ntag: v1\n")

	e, rec, _ := newTestEngine(mem)
	code := e.Run(context.Background(), testConfig("v2", true), []config.Target{web, other, api})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !equalStatuses(rec.statuses(), output.StatusApplied, output.StatusNoMarker, output.StatusApplied) {
		t.Fatalf("unexpected statuses: %v", rec.statuses())
	}
	if rec.results[1].OldValue != "" {
		t.Errorf("no-marker result must not carry an old value: %+v", rec.results[1])
	}
	if got, _ := mem.Content(api.Ref()); got != "# gitops-replacer: api\ntag: v2\n" {
		t.Errorf("third target not applied:\n%s", got)
	}
	if len(mem.Puts) != 2 {
		t.Errorf("expected 2 writes, got %d", len(mem.Puts))
	}
}

func TestRun_MalformedValueLine(t *testing.T) {
	mem := repository.NewMemory()
	web := target("acme/deploy", "values.yaml", "web")
	mem.Set(web.Ref(), "# gitops-replacer: web\n\nversion: v1\n")

	e, rec, _ := newTestEngine(mem)
	if code := e.Run(context.Background(), testConfig("v2", true), []config.Target{web}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !equalStatuses(rec.statuses(), output.StatusNoMarker) {
		t.Fatalf("unexpected statuses: %v", rec.statuses())
	}
	if !strings.Contains(rec.results[0].Message, "line 1") {
		t.Errorf("expected message to name the marker line, got %q", rec.results[0].Message)
	}
	if len(mem.Puts) != 0 {
		t.Fatalf("malformed line must not be written")
	}
}

func TestRun_Unchanged(t *testing.T) {
	mem := repository.NewMemory()
	web := target("acme/deploy", "apps/web/values.yaml", "web")
	mem.Set(web.Ref(), webValues)

	e, rec, _ := newTestEngine(mem)
	if code := e.Run(context.Background(), testConfig("v1", true), []config.Target{web}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !equalStatuses(rec.statuses(), output.StatusUnchanged) {
		t.Fatalf("unexpected statuses: %v", rec.statuses())
	}
	if len(mem.Puts) != 0 {
		t.Fatalf("unchanged file must not be written")
	}
}

func TestRun_GateInCIMode(t *testing.T) {
	mem := repository.NewMemory()
	prod := target("acme/deploy", "prod/values.yaml", "web")
	staging := target("acme/deploy", "staging/values.yaml", "web")
	mem.Set(prod.Ref(), webValues)
	mem.Set(staging.Ref(), webValues)

	var err error
	prod.Policy, err = gate.Compile(`refs/tags/.*`, "")
	if err != nil {
		t.Fatal(err)
	}
	staging.Policy, err = gate.Compile(`refs/heads/.*`, `refs/heads/wip-.*`)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		ci   bool
		ref  string
		want []output.Status
	}{
		{"tag deploys prod only", true, "refs/tags/v2", []output.Status{output.StatusChanged, output.StatusSkipped}},
		{"branch deploys staging only", true, "refs/heads/main", []output.Status{output.StatusSkipped, output.StatusChanged}},
		{"excluded branch deploys nothing", true, "refs/heads/wip-x", []output.Status{output.StatusSkipped, output.StatusSkipped}},
		{"gate ignored outside ci", false, "", []output.Status{output.StatusChanged, output.StatusChanged}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec, _ := newTestEngine(mem)
			cfg := testConfig("v2", false)
			cfg.Run.CI = tt.ci
			cfg.Run.Ref = tt.ref
			if code := e.Run(context.Background(), cfg, []config.Target{prod, staging}); code != 0 {
				t.Fatalf("expected exit 0, got %d", code)
			}
			if !equalStatuses(rec.statuses(), tt.want...) {
				t.Fatalf("expected %v, got %v", tt.want, rec.statuses())
			}
		})
	}
}

type conflictingClient struct {
	*repository.Memory
}

func (c conflictingClient) PutFileContent(ctx context.Context, ref repository.Ref, commit repository.Commit) (repository.WriteResult, error) {
	if strings.HasPrefix(ref.Path, "stale/") {
		return repository.WriteResult{}, fmt.Errorf("%w: values.yaml does not match %s", repository.ErrConflict, commit.ExpectedSHA)
	}
	return c.Memory.PutFileContent(ctx, ref, commit)
}

func TestRun_ApplyErrorContinues(t *testing.T) {
	mem := repository.NewMemory()
	stale := target("acme/deploy", "stale/values.yaml", "web")
	web := target("acme/deploy", "apps/web/values.yaml", "web")
	mem.Set(stale.Ref(), webValues)
	mem.Set(web.Ref(), webValues)

	e, rec, _ := newTestEngine(conflictingClient{mem})
	code := e.Run(context.Background(), testConfig("v2", true), []config.Target{stale, web})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !equalStatuses(rec.statuses(), output.StatusError, output.StatusApplied) {
		t.Fatalf("unexpected statuses: %v", rec.statuses())
	}
	if !strings.HasPrefix(rec.results[0].Message, "write: 409 conflict") {
		t.Errorf("unexpected conflict message: %q", rec.results[0].Message)
	}
}

// rereadFailingClient serves the first read of every file and fails any
// later read with ErrNotFound.
type rereadFailingClient struct {
	conflictingClient
	reads map[string]int
}

func (c rereadFailingClient) GetFileContent(ctx context.Context, ref repository.Ref) (repository.File, error) {
	c.reads[ref.Key()]++
	if c.reads[ref.Key()] > 1 {
		return repository.File{}, repository.ErrNotFound
	}
	return c.Memory.GetFileContent(ctx, ref)
}

func TestRun_ApplyFetchErrorContinues(t *testing.T) {
	mem := repository.NewMemory()
	content := "# gitops-replacer: web\nweb: v1\n# gitops-replacer: worker\nworker: v1\n"
	web := target("acme/deploy", "stale/values.yaml", "web")
	worker := target("acme/deploy", "stale/values.yaml", "worker")
	api := target("acme/deploy", "apps/api/values.yaml", "api")
	mem.Set(web.Ref(), content)
	mem.Set(api.Ref(), "# gitops-replacer: api\ntag: v1\n")

	client := rereadFailingClient{conflictingClient{mem}, map[string]int{}}
	e, rec, _ := newTestEngine(client)
	code := e.Run(context.Background(), testConfig("v2", true), []config.Target{web, worker, api})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !equalStatuses(rec.statuses(), output.StatusError, output.StatusError, output.StatusApplied) {
		t.Fatalf("unexpected statuses: %v", rec.statuses())
	}
	if !strings.HasPrefix(rec.results[0].Message, "write: 409 conflict") {
		t.Errorf("unexpected conflict message: %q", rec.results[0].Message)
	}
	if !strings.HasPrefix(rec.results[1].Message, "fetch: 404 not found") {
		t.Errorf("unexpected fetch message: %q", rec.results[1].Message)
	}
	if client.reads[web.Ref().Key()] != 2 {
		t.Errorf("expected the file to be read again after the failed write, got %d reads", client.reads[web.Ref().Key()])
	}
	if got, _ := mem.Content(api.Ref()); got != "# gitops-replacer: api\ntag: v2\n" {
		t.Errorf("batch did not continue after the fetch error:\n%s", got)
	}
}

func TestRun_SameFileTwoMarkers(t *testing.T) {
	mem := repository.NewMemory()
	content := "# gitops-replacer: web\nweb: v1\n# gitops-replacer: worker\nworker: v1\n"
	web := target("acme/deploy", "values.yaml", "web")
	worker := target("acme/deploy", "values.yaml", "worker")
	mem.Set(web.Ref(), content)

	e, rec, _ := newTestEngine(mem)
	if code := e.Run(context.Background(), testConfig("v2", true), []config.Target{web, worker}); code != 0 {
		t.Fatalf("expected exit 0, got %d (results %+v)", code, rec.results)
	}
	got, _ := mem.Content(web.Ref())
	if got != "# gitops-replacer: web\nweb: v2\n# gitops-replacer: worker\nworker: v2\n" {
		t.Fatalf("unexpected content:\n%s", got)
	}
	if len(mem.Gets) != 1 {
		t.Fatalf("expected one fetch for the shared file, got %d", len(mem.Gets))
	}
}

func TestRun_FilterReportsSkippedTargets(t *testing.T) {
	mem := repository.NewMemory()
	web := target("acme/deploy", "apps/web/values.yaml", "web")
	api := target("acme/deploy", "apps/api/values.yaml", "api")
	mem.Set(web.Ref(), webValues)

	e, rec, _ := newTestEngine(mem)
	cfg := testConfig("v2", false)
	cfg.Run.Skip = []string{"acme/deploy/apps/api/**"}
	if code := e.Run(context.Background(), cfg, []config.Target{web, api}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !equalStatuses(rec.statuses(), output.StatusSkipped, output.StatusChanged) {
		t.Fatalf("unexpected statuses: %v", rec.statuses())
	}
	if len(mem.Gets) != 1 {
		t.Fatalf("filtered targets must not be fetched, got %d reads", len(mem.Gets))
	}
}

func TestRun_FatalBeforeNetwork(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad message template", func(c *config.Config) { c.Commit.Message = "{{#if depName}}unclosed" }},
		{"too many placeholders", func(c *config.Config) { c.Commit.Message = "{} {} {}" }},
		{"bad only pattern", func(c *config.Config) { c.Run.Only = []string{"acme/[deploy"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := repository.NewMemory()
			e, _, log := newTestEngine(mem)
			cfg := testConfig("v2", true)
			tt.mutate(cfg)
			code := e.Run(context.Background(), cfg, []config.Target{target("acme/deploy", "values.yaml", "web")})
			if code != 3 {
				t.Fatalf("expected exit 3, got %d", code)
			}
			if len(mem.Gets) != 0 {
				t.Fatalf("expected no network calls, got %d", len(mem.Gets))
			}
			if !strings.Contains(log.String(), "Error") {
				t.Fatalf("expected an error line, got %q", log.String())
			}
		})
	}
}

func TestRun_VerboseDumpsFiles(t *testing.T) {
	mem := repository.NewMemory()
	web := target("acme/deploy", "apps/web/values.yaml", "web")
	mem.Set(web.Ref(), webValues)

	e, _, log := newTestEngine(mem)
	cfg := testConfig("v2", false)
	cfg.Runtime.Verbose = true
	_ = e.Run(context.Background(), cfg, []config.Target{web})

	out := log.String()
	for _, want := range []string{
		"#### BEGIN OF SOURCE FILE (acme/deploy@main:apps/web/values.yaml) ####",
		"#### END OF SOURCE FILE ####",
		"#### BEGIN OF DESIRED FILE",
		`tag: "v2" # pinned`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in verbose output, got:\n%s", want, out)
		}
	}
}

func TestExitCodeForRun(t *testing.T) {
	tests := []struct {
		fatal, invalid, applyErrors bool
		want                        int
	}{
		{false, false, false, 0},
		{false, false, true, 1},
		{false, true, false, 2},
		{false, true, true, 2},
		{true, true, true, 3},
	}
	for _, tt := range tests {
		if got := exitCodeForRun(tt.fatal, tt.invalid, tt.applyErrors); got != tt.want {
			t.Errorf("exitCodeForRun(%v, %v, %v) = %d, want %d", tt.fatal, tt.invalid, tt.applyErrors, got, tt.want)
		}
	}
}
