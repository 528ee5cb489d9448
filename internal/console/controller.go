// Package console implements the run-control state machine behind the
// console pane: idle -> running -> (awaiting-input <-> running)* -> idle.
// It owns two-tier cancellation: a cooperative interrupt first, then a hard
// engine teardown when the grace period expires. The package is UI-agnostic;
// the rendering layer supplies a Sink and the executor supplies a Runner.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lessonlab/codepad/internal/engine"
	"github.com/lessonlab/codepad/internal/executor"
)

// LineKind tags console lines for styling.
type LineKind int

const (
	LineStdout LineKind = iota
	LineStderr
	LineInfo
	LineError
	LineResult
	// LineEcho is the user's submitted input, echoed back into the stream.
	LineEcho
)

// Sink is the console rendering surface.
type Sink interface {
	AppendLine(kind LineKind, text string)
	Clear()
	ShowInput(prompt string)
	HideInput()
	SetRunning(running bool)
}

// Runner is the execution façade the controller drives. *executor.Client
// satisfies it.
type Runner interface {
	Initialize(ctx context.Context) error
	ExecuteWithFiles(ctx context.Context, files map[string]string, code string, h executor.Handler) (int64, error)
	SendInput(id int64, value *string) error
	Interrupt()
	ForceTerminate()
}

var (
	// ErrRunning rejects Run while an execution is active.
	ErrRunning = errors.New("a run is already in progress")
	// ErrNoInput rejects input submission when no input widget is open.
	ErrNoInput = errors.New("no input is being requested")
)

// DefaultGrace bounds how long a cooperative interrupt may go unanswered
// before the engine is torn down.
const DefaultGrace = 3 * time.Second

type state int

const (
	stateIdle state = iota
	stateRunning
	stateAwaitingInput
)

// timerFunc schedules fn after d and returns a cancel func. Injectable so
// tests can fire the grace timer deterministically.
type timerFunc func(d time.Duration, fn func()) (cancel func() bool)

func afterFunc(d time.Duration, fn func()) (cancel func() bool) {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

// Controller mediates between the Run/Stop control, the console sink, and
// the executor. Safe for calls from both the UI and the executor's dispatch
// goroutine.
type Controller struct {
	log    *slog.Logger
	runner Runner
	sink   Sink
	grace  time.Duration
	timer  timerFunc

	mu        sync.Mutex
	state     state
	runID     int64
	idReady   chan struct{}
	produced  bool
	inputOpen bool
	stopGrace func() bool
}

func NewController(runner Runner, sink Sink, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		log:    logger,
		runner: runner,
		sink:   sink,
		grace:  DefaultGrace,
		timer:  afterFunc,
	}
}

// SetGrace overrides the interrupt grace period.
func (c *Controller) SetGrace(d time.Duration) {
	c.mu.Lock()
	c.grace = d
	c.mu.Unlock()
}

// Running reports whether an execution is active (running or awaiting
// input).
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != stateIdle
}

// Run starts executing code against the given file snapshot. The previous
// console content is cleared and the Run control swaps to Stop. Bootstrap
// and execution proceed asynchronously; outcomes land in the sink.
func (c *Controller) Run(ctx context.Context, name string, files map[string]string, code string) error {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return ErrRunning
	}
	c.state = stateRunning
	c.produced = false
	c.runID = 0
	ready := make(chan struct{})
	c.idReady = ready
	c.mu.Unlock()

	c.sink.Clear()
	c.sink.SetRunning(true)
	c.sink.AppendLine(LineInfo, fmt.Sprintf("Running %s ...", name))

	go c.start(ctx, files, code, ready)
	return nil
}

// start runs on its own goroutine. ready is closed once the execution id has
// been stored (or the run failed outright), so event callbacks that need the
// id can wait on it instead of racing the ExecuteWithFiles return.
func (c *Controller) start(ctx context.Context, files map[string]string, code string, ready chan struct{}) {
	defer close(ready)
	if err := c.runner.Initialize(ctx); err != nil {
		c.log.Warn("interpreter bootstrap failed", "error", err)
		c.finish()
		c.sink.AppendLine(LineError, "Failed to start the interpreter: "+err.Error())
		return
	}
	id, err := c.runner.ExecuteWithFiles(ctx, files, code, c)
	if err != nil {
		c.finish()
		c.sink.AppendLine(LineError, err.Error())
		return
	}
	c.mu.Lock()
	c.runID = id
	c.mu.Unlock()
}

// Stop requests cooperative cancellation and arms the grace timer. When the
// engine fails to complete in time the timer escalates to ForceTerminate.
// Repeated presses while the timer is armed are ignored.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == stateIdle || c.stopGrace != nil {
		c.mu.Unlock()
		return
	}
	c.stopGrace = c.timer(c.grace, c.graceExpired)
	c.mu.Unlock()

	c.runner.Interrupt()
	c.sink.AppendLine(LineInfo, "Stopping ...")
}

// graceExpired is the hard fallback: the interrupt went unanswered, so the
// whole execution context is discarded and rebuilt on the next run.
func (c *Controller) graceExpired() {
	c.mu.Lock()
	if c.state == stateIdle {
		c.mu.Unlock()
		return
	}
	hideInput := c.inputOpen
	c.reset()
	c.mu.Unlock()

	c.runner.ForceTerminate()
	if hideInput {
		c.sink.HideInput()
	}
	c.sink.AppendLine(LineError, "Forcefully stopped. The interpreter was discarded and restarts on the next run.")
	c.sink.SetRunning(false)
}

// SubmitInput forwards the user's input line to the suspended guest call and
// echoes it into the console.
func (c *Controller) SubmitInput(value string) error {
	c.mu.Lock()
	if !c.inputOpen {
		c.mu.Unlock()
		return ErrNoInput
	}
	c.inputOpen = false
	c.state = stateRunning
	id := c.runID
	c.mu.Unlock()

	c.sink.HideInput()
	c.sink.AppendLine(LineEcho, value)
	return c.runner.SendInput(id, &value)
}

// CancelInput dismisses the input widget; the guest's pending input call
// fails with a cancellation error.
func (c *Controller) CancelInput() error {
	c.mu.Lock()
	if !c.inputOpen {
		c.mu.Unlock()
		return ErrNoInput
	}
	c.inputOpen = false
	c.state = stateRunning
	id := c.runID
	c.mu.Unlock()

	c.sink.HideInput()
	c.sink.AppendLine(LineInfo, "Input cancelled.")
	return c.runner.SendInput(id, nil)
}

// OnOutput implements executor.Handler.
func (c *Controller) OnOutput(text string, stream engine.Stream) {
	c.mu.Lock()
	c.produced = true
	c.mu.Unlock()
	kind := LineStdout
	if stream == engine.StreamStderr {
		kind = LineStderr
	}
	c.sink.AppendLine(kind, text)
}

// OnProgress implements executor.Handler.
func (c *Controller) OnProgress(percent int, message string) {
	c.log.Debug("engine progress", "percent", percent, "message", message)
}

// OnInputRequest implements executor.Handler. The dispatch goroutine can
// deliver an input request before ExecuteWithFiles has returned the id to
// start, so the widget is only opened once the id is in place; a submit can
// then never forward a stale id.
func (c *Controller) OnInputRequest(prompt string) {
	c.mu.Lock()
	ready := c.idReady
	c.mu.Unlock()
	if ready != nil {
		<-ready
	}

	c.mu.Lock()
	if c.state == stateIdle {
		c.mu.Unlock()
		return
	}
	c.state = stateAwaitingInput
	c.inputOpen = true
	c.mu.Unlock()

	if prompt != "" {
		c.sink.AppendLine(LineInfo, prompt)
	}
	c.sink.ShowInput(prompt)
}

// OnComplete implements executor.Handler. It renders the terminal outcome:
// the result value when present, the error when present, and an explicit
// "no output" line when the run produced nothing at all.
func (c *Controller) OnComplete(result executor.Result) {
	c.mu.Lock()
	if c.state == stateIdle {
		// Already torn down by the grace timer.
		c.mu.Unlock()
		return
	}
	hideInput := c.inputOpen
	produced := c.produced
	c.reset()
	c.mu.Unlock()

	if hideInput {
		c.sink.HideInput()
	}
	if result.Value != nil {
		produced = true
		c.sink.AppendLine(LineResult, *result.Value)
	}
	if result.Err != "" {
		produced = true
		c.sink.AppendLine(LineError, result.Err)
	}
	if !produced {
		c.sink.AppendLine(LineInfo, "(no output)")
	}
	c.sink.SetRunning(false)
}

// OnError implements executor.Handler: protocol-level failures always reach
// the console, never a silent drop.
func (c *Controller) OnError(message string) {
	c.mu.Lock()
	if c.state == stateIdle {
		c.mu.Unlock()
		return
	}
	hideInput := c.inputOpen
	c.reset()
	c.mu.Unlock()

	if hideInput {
		c.sink.HideInput()
	}
	c.sink.AppendLine(LineError, message)
	c.sink.SetRunning(false)
}

// reset returns to idle and disarms the grace timer. Caller holds mu.
func (c *Controller) reset() {
	c.state = stateIdle
	c.runID = 0
	c.inputOpen = false
	if c.stopGrace != nil {
		c.stopGrace()
		c.stopGrace = nil
	}
}

// finish is reset plus the sink bookkeeping, for failures before any engine
// event could arrive.
func (c *Controller) finish() {
	c.mu.Lock()
	c.reset()
	c.mu.Unlock()
	c.sink.SetRunning(false)
}
