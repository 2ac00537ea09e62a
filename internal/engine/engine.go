package engine

import (
	"context"
	"fmt"
	"gitops-replacer/internal/config"
	"gitops-replacer/internal/output"
	"gitops-replacer/internal/patcher"
	"gitops-replacer/internal/repository"
	"io"
	"os"
)

func setupOutputManager(cfg *config.Config, extra ...output.Sink) (*output.Manager, error) {
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(nil, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterStatus)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(os.Stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Report Sink
	if cfg.Output.Report != "" {
		rs, err := output.NewReportSink(cfg.Output.Report)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(rs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// GitHub Actions Sink
	if cfg.Output.Actions {
		if err := outMgr.AddSink(output.NewActionsSink(nil, nil)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	for _, s := range extra {
		if err := outMgr.AddSink(s); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

// Engine runs one batch: precheck every target, then patch and write them in
// list order.
type Engine struct {
	Client repository.Client

	// Log receives progress lines and, in verbose mode, the source and desired
	// file content. Nil means os.Stderr.
	Log io.Writer

	// sinks is a test seam: extra sinks added to every run's output manager.
	sinks []output.Sink
}

func NewEngine(client repository.Client) *Engine {
	return &Engine{
		Client: client,
	}
}

func (e *Engine) logWriter() io.Writer {
	if e.Log != nil {
		return e.Log
	}
	return os.Stderr
}

// run is the state of a single Run call. The file cache lives and dies with it.
type run struct {
	cfg     *config.Config
	client  repository.Client
	out     *output.Manager
	cache   *fileCache
	message *messageTemplate
	log     io.Writer
	outcome Outcome
}

func (r *run) progressf(format string, args ...any) {
	if r.cfg.Output.NoConsole {
		return
	}
	fmt.Fprintf(r.log, format, args...)
}

func (r *run) record(res output.Result) {
	r.outcome.add(res)
	_ = r.out.Record(res)
}

func newResult(t config.Target, phase output.Phase) output.Result {
	return output.Result{
		Repository: t.Repository,
		Branch:     t.Branch,
		File:       t.File,
		DepName:    t.DepName,
		Phase:      phase,
	}
}

// Run processes targets with the value and options in cfg and returns the
// process exit code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config, targets []config.Target) int {
	log := e.logWriter()

	msg, err := compileMessage(cfg.Commit.Message)
	if err != nil {
		fmt.Fprintf(log, "Error: %v\n", err)
		return exitCodeForRun(true, false, false)
	}

	selected, filtered, err := filterTargets(targets, cfg.Run.Only, cfg.Run.Skip)
	if err != nil {
		fmt.Fprintf(log, "Error: %v\n", err)
		return exitCodeForRun(true, false, false)
	}

	outMgr, err := setupOutputManager(cfg, e.sinks...)
	if err != nil {
		fmt.Fprintf(log, "Error creating output sinks: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	defer func() {
		if err := outMgr.Close(); err != nil {
			fmt.Fprintf(log, "Error closing output sinks: %v\n", err)
		}
	}()

	r := &run{
		cfg:     cfg,
		client:  e.Client,
		out:     outMgr,
		cache:   newFileCache(e.Client),
		message: msg,
		log:     log,
	}

	_ = outMgr.Emit(output.Event{
		Type:    output.EventRunStarted,
		Targets: len(targets),
		Value:   cfg.Run.Value,
		Apply:   cfg.Run.Apply,
		Ref:     cfg.Run.Ref,
	})

	for _, f := range filtered {
		res := newResult(f.Target, output.PhasePrecheck)
		res.Status = output.StatusSkipped
		res.Message = f.Reason
		r.record(res)
	}

	r.progressf("Prechecking %d targets...\n", len(selected))
	_ = outMgr.Emit(output.Event{Type: output.EventPrecheckStarted, Targets: len(selected)})
	r.precheck(ctx, selected)

	if r.outcome.Invalid > 0 {
		r.progressf("Precheck failed for %d of %d targets; nothing was written.\n", r.outcome.Invalid, len(selected))
		code := r.outcome.ExitCode()
		_ = outMgr.Emit(output.Event{Type: output.EventRunFinished, ExitCode: code})
		return code
	}

	if cfg.Run.Apply {
		r.progressf("Applying %d targets...\n", len(selected))
	} else {
		r.progressf("Previewing %d targets (use --apply to write)...\n", len(selected))
	}
	_ = outMgr.Emit(output.Event{Type: output.EventApplyStarted, Targets: len(selected), Apply: cfg.Run.Apply})
	for _, t := range selected {
		r.record(r.applyTarget(ctx, t))
	}

	o := r.outcome
	r.progressf("Done: %d applied, %d to change, %d unchanged, %d skipped, %d without marker, %d errors.\n",
		o.Applied, o.Changed, o.Unchanged, o.Skipped, o.NoMarker, o.Errors)

	code := o.ExitCode()
	_ = outMgr.Emit(output.Event{Type: output.EventRunFinished, ExitCode: code})
	return code
}

// precheck reads every target once and fills the cache. It never stops early
// so that all unreadable targets are reported together. When any target is
// rejected, the readable ones are reported as skipped.
func (r *run) precheck(ctx context.Context, targets []config.Target) {
	var ok []config.Target
	for _, t := range targets {
		if _, err := r.cache.get(ctx, t.Ref()); err != nil {
			res := newResult(t, output.PhasePrecheck)
			res.Status = output.StatusInvalid
			res.Message = presentRepositoryError(err, r.cfg.Runtime.Verbose)
			r.record(res)
			continue
		}
		ok = append(ok, t)
	}

	if r.outcome.Invalid == 0 {
		return
	}
	for _, t := range ok {
		res := newResult(t, output.PhasePrecheck)
		res.Status = output.StatusSkipped
		res.Message = "not applied: precheck failed for other targets"
		r.record(res)
	}
}

func (r *run) applyTarget(ctx context.Context, t config.Target) output.Result {
	res := newResult(t, output.PhaseApply)

	if r.cfg.Run.CI {
		if d := t.Policy.Evaluate(r.cfg.Run.Ref); !d.Eligible {
			res.Status = output.StatusSkipped
			res.Message = d.Reason
			return res
		}
	}

	ref := t.Ref()
	file, err := r.cache.get(ctx, ref)
	if err != nil {
		res.Status = output.StatusError
		res.Message = "fetch: " + presentRepositoryError(err, r.cfg.Runtime.Verbose)
		return res
	}

	if r.cfg.Runtime.Verbose {
		r.dumpFile("SOURCE", ref, string(file.Content))
	}

	patched := patcher.Replace(string(file.Content), t.DepName, r.cfg.Run.Value)
	switch {
	case !patched.MarkerFound():
		res.Status = output.StatusNoMarker
		res.Message = fmt.Sprintf("no marker found for depName '%s'", t.DepName)
		return res
	case patched.Malformed:
		res.Status = output.StatusNoMarker
		res.Message = fmt.Sprintf("marker for depName '%s' on line %d is not followed by a 'key: value' line", t.DepName, patched.MarkerLine)
		return res
	}

	res.OldValue = patched.OldValue
	res.NewValue = r.cfg.Run.Value
	if !patched.Changed {
		res.Status = output.StatusUnchanged
		return res
	}

	if r.cfg.Runtime.Verbose {
		r.dumpFile("DESIRED", ref, patched.Content)
	}

	if !r.cfg.Run.Apply {
		res.Status = output.StatusChanged
		return res
	}

	message, err := r.message.render(messageData{
		DepName:    t.DepName,
		Value:      r.cfg.Run.Value,
		OldValue:   patched.OldValue,
		Repository: t.Repository,
		Branch:     t.Branch,
		File:       t.File,
	})
	if err != nil {
		res.Status = output.StatusError
		res.Message = err.Error()
		return res
	}

	content := []byte(patched.Content)
	wr, err := r.client.PutFileContent(ctx, ref, repository.Commit{
		Content:     content,
		ExpectedSHA: file.SHA,
		Committer: repository.Committer{
			Name:  r.cfg.Commit.Name,
			Email: r.cfg.Commit.Email,
		},
		Message: message,
	})
	if err != nil {
		// The cached SHA may be stale; later targets in this file read it again.
		r.cache.forget(ref.Key())
		res.Status = output.StatusError
		res.Message = "write: " + presentRepositoryError(err, r.cfg.Runtime.Verbose)
		return res
	}
	r.cache.store(ref.Key(), repository.File{Content: content, SHA: wr.ContentSHA})

	res.Status = output.StatusApplied
	res.CommitSHA = wr.CommitSHA
	res.CommitURL = wr.CommitURL
	res.ContentSHA = wr.ContentSHA
	if wr.CommitSHA != "" {
		res.Message = "committed " + wr.CommitSHA
	}
	return res
}

func (r *run) dumpFile(kind string, ref repository.Ref, content string) {
	fmt.Fprintf(r.log, "#### BEGIN OF %s FILE (%s) ####\n", kind, ref)
	fmt.Fprint(r.log, content)
	if content != "" && content[len(content)-1] != '\n' {
		fmt.Fprintln(r.log)
	}
	fmt.Fprintf(r.log, "#### END OF %s FILE ####\n", kind)
}
