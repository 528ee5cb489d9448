package console

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lessonlab/codepad/internal/engine"
	"github.com/lessonlab/codepad/internal/executor"
)

type line struct {
	kind LineKind
	text string
}

type fakeSink struct {
	mu         sync.Mutex
	lines      []line
	cleared    int
	inputShown int
	inputHides int
	running    bool
}

func (s *fakeSink) AppendLine(kind LineKind, text string) {
	s.mu.Lock()
	s.lines = append(s.lines, line{kind, text})
	s.mu.Unlock()
}

func (s *fakeSink) Clear() {
	s.mu.Lock()
	s.cleared++
	s.lines = nil
	s.mu.Unlock()
}

func (s *fakeSink) ShowInput(prompt string) {
	s.mu.Lock()
	s.inputShown++
	s.mu.Unlock()
}

func (s *fakeSink) HideInput() {
	s.mu.Lock()
	s.inputHides++
	s.mu.Unlock()
}

func (s *fakeSink) SetRunning(running bool) {
	s.mu.Lock()
	s.running = running
	s.mu.Unlock()
}

func (s *fakeSink) snapshot() []line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]line(nil), s.lines...)
}

func (s *fakeSink) has(kind LineKind, text string) bool {
	for _, l := range s.snapshot() {
		if l.kind == kind && l.text == text {
			return true
		}
	}
	return false
}

type fakeRunner struct {
	mu          sync.Mutex
	initErr     error
	startedCh   chan executor.Handler
	earlyPrompt string
	inputs      []*string
	inputIDs    []int64
	interrupts  int
	forceKills  int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{startedCh: make(chan executor.Handler, 4)}
}

func (r *fakeRunner) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initErr
}

func (r *fakeRunner) ExecuteWithFiles(ctx context.Context, files map[string]string, code string, h executor.Handler) (int64, error) {
	r.mu.Lock()
	prompt := r.earlyPrompt
	r.mu.Unlock()
	if prompt != "" {
		// Deliver an input request on the dispatch path before the caller has
		// seen the execution id.
		launched := make(chan struct{})
		go func() {
			close(launched)
			h.OnInputRequest(prompt)
		}()
		<-launched
	}
	r.startedCh <- h
	return 1, nil
}

func (r *fakeRunner) SendInput(id int64, value *string) error {
	r.mu.Lock()
	r.inputs = append(r.inputs, value)
	r.inputIDs = append(r.inputIDs, id)
	r.mu.Unlock()
	return nil
}

func (r *fakeRunner) Interrupt() {
	r.mu.Lock()
	r.interrupts++
	r.mu.Unlock()
}

func (r *fakeRunner) ForceTerminate() {
	r.mu.Lock()
	r.forceKills++
	r.mu.Unlock()
}

// startRun kicks off a run and waits for the execution handler to register.
func startRun(t *testing.T, c *Controller, r *fakeRunner) executor.Handler {
	t.Helper()
	if err := c.Run(context.Background(), "main.js", nil, "code"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case h := <-r.startedCh:
		return h
	case <-time.After(2 * time.Second):
		t.Fatal("execution never started")
		return nil
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestRunRendersOutputAndCompletes(t *testing.T) {
	r, sink := newFakeRunner(), &fakeSink{}
	c := NewController(r, sink, nil)
	h := startRun(t, c, r)

	h.OnOutput("Hello, World!", engine.StreamStdout)
	h.OnComplete(executor.Result{Stdout: []string{"Hello, World!"}})

	if !sink.has(LineStdout, "Hello, World!") {
		t.Errorf("missing stdout line: %v", sink.snapshot())
	}
	if sink.has(LineInfo, "(no output)") {
		t.Error("no-output line rendered although output was produced")
	}
	if c.Running() {
		t.Error("controller did not return to idle")
	}
	if sink.running {
		t.Error("Stop control still shown after completion")
	}
	if sink.cleared != 1 {
		t.Errorf("console cleared %d times, want 1", sink.cleared)
	}
}

func TestStderrLinesTagged(t *testing.T) {
	r, sink := newFakeRunner(), &fakeSink{}
	c := NewController(r, sink, nil)
	h := startRun(t, c, r)

	h.OnOutput("boom", engine.StreamStderr)
	h.OnComplete(executor.Result{Stderr: []string{"boom"}})
	if !sink.has(LineStderr, "boom") {
		t.Errorf("missing stderr line: %v", sink.snapshot())
	}
}

func TestSilentRunGetsNoOutputLine(t *testing.T) {
	r, sink := newFakeRunner(), &fakeSink{}
	c := NewController(r, sink, nil)
	h := startRun(t, c, r)

	h.OnComplete(executor.Result{})
	if !sink.has(LineInfo, "(no output)") {
		t.Errorf("missing no-output line: %v", sink.snapshot())
	}
}

func TestResultAndErrorLines(t *testing.T) {
	r, sink := newFakeRunner(), &fakeSink{}
	c := NewController(r, sink, nil)
	h := startRun(t, c, r)

	value := "42"
	h.OnComplete(executor.Result{Value: &value, Err: "ReferenceError: y is not defined"})
	if !sink.has(LineResult, "42") {
		t.Error("result value not rendered")
	}
	if !sink.has(LineError, "ReferenceError: y is not defined") {
		t.Error("guest error not rendered")
	}
	if sink.has(LineInfo, "(no output)") {
		t.Error("no-output line rendered alongside a result")
	}
}

func TestSecondRunRejectedWhileActive(t *testing.T) {
	r, sink := newFakeRunner(), &fakeSink{}
	c := NewController(r, sink, nil)
	h := startRun(t, c, r)

	if err := c.Run(context.Background(), "main.js", nil, "code"); !errors.Is(err, ErrRunning) {
		t.Errorf("second Run error = %v, want ErrRunning", err)
	}
	h.OnComplete(executor.Result{})
	if err := c.Run(context.Background(), "main.js", nil, "code"); err != nil {
		t.Errorf("Run after completion: %v", err)
	}
}

func TestInputSubmitEchoesAndForwards(t *testing.T) {
	r, sink := newFakeRunner(), &fakeSink{}
	c := NewController(r, sink, nil)
	h := startRun(t, c, r)

	h.OnInputRequest("Name: ")
	if !sink.has(LineInfo, "Name: ") {
		t.Error("prompt line not rendered")
	}
	if sink.inputShown != 1 {
		t.Errorf("input widget shown %d times, want 1", sink.inputShown)
	}
	if err := c.SubmitInput("Ada"); err != nil {
		t.Fatalf("SubmitInput: %v", err)
	}
	if !sink.has(LineEcho, "Ada") {
		t.Error("submitted value not echoed")
	}
	if sink.inputHides != 1 {
		t.Error("input widget not removed on submit")
	}
	if len(r.inputs) != 1 || r.inputs[0] == nil || *r.inputs[0] != "Ada" {
		t.Errorf("forwarded inputs = %v", r.inputs)
	}
	h.OnComplete(executor.Result{Stdout: []string{"hi"}})
}

func TestInputCancelForwardsNull(t *testing.T) {
	r, sink := newFakeRunner(), &fakeSink{}
	c := NewController(r, sink, nil)
	h := startRun(t, c, r)

	h.OnInputRequest("Name: ")
	if err := c.CancelInput(); err != nil {
		t.Fatalf("CancelInput: %v", err)
	}
	if !sink.has(LineInfo, "Input cancelled.") {
		t.Error("cancellation notice not rendered")
	}
	if len(r.inputs) != 1 || r.inputs[0] != nil {
		t.Errorf("forwarded inputs = %v, want one nil", r.inputs)
	}
	h.OnComplete(executor.Result{Err: "Error: input cancelled"})
	if !sink.has(LineError, "Error: input cancelled") {
		t.Error("cancellation error not rendered")
	}
}

func TestEarlyInputRequestWaitsForExecutionID(t *testing.T) {
	// An input request racing ahead of the ExecuteWithFiles return must not
	// let a submit forward the zero id.
	r, sink := newFakeRunner(), &fakeSink{}
	r.earlyPrompt = "Name: "
	c := NewController(r, sink, nil)
	h := startRun(t, c, r)

	waitUntil(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.inputShown == 1
	})
	if err := c.SubmitInput("Ada"); err != nil {
		t.Fatalf("SubmitInput: %v", err)
	}
	r.mu.Lock()
	ids := append([]int64(nil), r.inputIDs...)
	r.mu.Unlock()
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("forwarded ids = %v, want the execution id", ids)
	}
	h.OnComplete(executor.Result{Stdout: []string{"ok"}})
}

func TestSubmitWithoutWidgetRejected(t *testing.T) {
	r, sink := newFakeRunner(), &fakeSink{}
	c := NewController(r, sink, nil)
	if err := c.SubmitInput("x"); !errors.Is(err, ErrNoInput) {
		t.Errorf("SubmitInput error = %v, want ErrNoInput", err)
	}
}

func TestStopInterruptsAndDisarmsOnComplete(t *testing.T) {
	r, sink := newFakeRunner(), &fakeSink{}
	c := NewController(r, sink, nil)
	var graceFn func()
	cancelled := false
	c.timer = func(d time.Duration, fn func()) func() bool {
		graceFn = fn
		return func() bool { cancelled = true; return true }
	}
	h := startRun(t, c, r)

	c.Stop()
	if r.interrupts != 1 {
		t.Fatalf("interrupts = %d, want 1", r.interrupts)
	}
	c.Stop() // repeated press while the timer is armed is a no-op
	if r.interrupts != 1 {
		t.Errorf("repeated Stop sent another interrupt")
	}
	h.OnComplete(executor.Result{Interrupted: true, Err: "interrupted"})
	if !cancelled {
		t.Error("grace timer not disarmed by completion")
	}
	if graceFn == nil {
		t.Fatal("grace timer never armed")
	}
	graceFn() // late fire after completion must be a no-op
	if r.forceKills != 0 {
		t.Error("engine force-terminated although the run completed in time")
	}
}

func TestGraceExpiryForceTerminates(t *testing.T) {
	r, sink := newFakeRunner(), &fakeSink{}
	c := NewController(r, sink, nil)
	var graceFn func()
	c.timer = func(d time.Duration, fn func()) func() bool {
		graceFn = fn
		return func() bool { return false }
	}
	h := startRun(t, c, r)

	c.Stop()
	graceFn()
	if r.forceKills != 1 {
		t.Fatalf("forceKills = %d, want 1", r.forceKills)
	}
	if !sink.has(LineError, "Forcefully stopped. The interpreter was discarded and restarts on the next run.") {
		t.Errorf("missing forcefully-stopped notice: %v", sink.snapshot())
	}
	if c.Running() {
		t.Error("controller not idle after teardown")
	}
	// Whatever the dead engine would eventually have reported is ignored.
	before := len(sink.snapshot())
	h.OnComplete(executor.Result{Stdout: []string{"late"}})
	if len(sink.snapshot()) != before {
		t.Error("stale completion rendered after force terminate")
	}
	// A new run succeeds against the rebuilt engine.
	if err := c.Run(context.Background(), "main.js", nil, "code"); err != nil {
		t.Errorf("Run after force terminate: %v", err)
	}
	<-r.startedCh
}

func TestBootstrapFailureIsRetryable(t *testing.T) {
	r, sink := newFakeRunner(), &fakeSink{}
	r.initErr = errors.New("interpreter runtime missing")
	c := NewController(r, sink, nil)

	if err := c.Run(context.Background(), "main.js", nil, "code"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	waitUntil(t, func() bool { return !c.Running() })
	if !sink.has(LineError, "Failed to start the interpreter: interpreter runtime missing") {
		t.Errorf("bootstrap failure not surfaced: %v", sink.snapshot())
	}

	r.mu.Lock()
	r.initErr = nil
	r.mu.Unlock()
	h := startRun(t, c, r)
	h.OnComplete(executor.Result{Stdout: []string{"ok"}})
	waitUntil(t, func() bool { return !c.Running() })
}
