// Package executor provides the host-side façade over the execution engine.
// A single Client is shared by every call site that wants to run guest code:
// it owns the engine lifecycle, multiplexes executions by id, and fans
// low-level protocol events out to per-execution handlers.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lessonlab/codepad/internal/engine"
)

var (
	// ErrBusy is returned when Execute is called while another execution is
	// still running or awaiting input. The engine is single-threaded; jobs
	// are never interleaved.
	ErrBusy = errors.New("an execution is already active")
	// ErrNoActiveInput is returned when SendInput targets an execution that
	// is not the one currently awaiting input.
	ErrNoActiveInput = errors.New("no matching execution is awaiting input")
)

// DefaultBootTimeout bounds interpreter bootstrap.
const DefaultBootTimeout = 30 * time.Second

// Handler receives the events of one execution. Registration is removed
// exactly once, on the terminal event (complete, protocol error, or force
// termination) - never left dangling.
type Handler interface {
	OnOutput(text string, stream engine.Stream)
	OnProgress(percent int, message string)
	OnInputRequest(prompt string)
	OnComplete(result Result)
	OnError(message string)
}

// Result is the terminal outcome of an execution.
type Result struct {
	Stdout      []string
	Stderr      []string
	Err         string
	Interrupted bool
	// Value is the rendered last-expression value, or nil when the run
	// produced no meaningful value.
	Value *string
}

// engineHandle abstracts *engine.Engine for tests.
type engineHandle interface {
	Events() <-chan engine.Event
	Done() <-chan struct{}
	Load() error
	WriteFiles(files map[string]string) error
	Execute(id int64, code string) error
	SendInput(value *string) error
	Interrupt() error
	Kill()
}

// inflight is a bootstrap shared by every concurrent Initialize caller, so a
// second caller never starts a second engine.
type inflight struct {
	done chan struct{}
	err  error
}

// Client is the shared execution façade. Construct once at startup with
// NewClient and pass it to whichever components need to run code.
type Client struct {
	log         *slog.Logger
	bootTimeout time.Duration
	newEngine   func() engineHandle

	mu       sync.Mutex
	eng      engineHandle
	ready    bool
	boot     *inflight
	handlers map[int64]Handler
	active   int64
	nextID   int64
}

// NewClient creates a Client. The engine is not started until the first
// Initialize or Execute call.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		log:         logger,
		bootTimeout: DefaultBootTimeout,
		newEngine:   func() engineHandle { return engine.New(logger) },
		handlers:    make(map[int64]Handler),
	}
}

// SetBootTimeout overrides the interpreter bootstrap timeout.
func (c *Client) SetBootTimeout(d time.Duration) {
	c.mu.Lock()
	c.bootTimeout = d
	c.mu.Unlock()
}

// Initialize bootstraps the engine if needed. It is idempotent and
// concurrency-safe: callers arriving during an in-flight bootstrap await the
// same result instead of starting another engine.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.ready {
		c.mu.Unlock()
		return nil
	}
	if c.boot == nil {
		c.boot = &inflight{done: make(chan struct{})}
		eng := c.newEngine()
		c.eng = eng
		timeout := c.bootTimeout
		go c.dispatch(eng)
		go c.bootstrap(eng, c.boot, timeout)
	}
	boot := c.boot
	c.mu.Unlock()

	select {
	case <-boot.done:
		return boot.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// bootstrap posts the load request and enforces this bootstrap's timeout.
// Success and pre-ready failure are observed by dispatch.
func (c *Client) bootstrap(eng engineHandle, boot *inflight, timeout time.Duration) {
	if err := eng.Load(); err != nil {
		c.finishBoot(boot, fmt.Errorf("load interpreter: %w", err))
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-boot.done:
	case <-timer.C:
		c.finishBoot(boot, fmt.Errorf("interpreter bootstrap timed out after %v", timeout))
		c.discard(eng)
	}
}

// Execute preprocessed code under a fresh, monotonically increasing
// execution id. It returns the id immediately; completion arrives through
// the handler. Only one execution may be active at a time.
func (c *Client) Execute(ctx context.Context, code string, h Handler) (int64, error) {
	return c.ExecuteWithFiles(ctx, nil, code, h)
}

// ExecuteWithFiles writes the file snapshot into the engine's virtual
// filesystem before executing. The engine processes requests in order, so
// the files are visible to cross-file imports of this execution.
func (c *Client) ExecuteWithFiles(ctx context.Context, files map[string]string, code string, h Handler) (int64, error) {
	if err := c.Initialize(ctx); err != nil {
		return 0, err
	}
	c.mu.Lock()
	if c.active != 0 {
		c.mu.Unlock()
		return 0, ErrBusy
	}
	eng := c.eng
	if eng == nil {
		c.mu.Unlock()
		return 0, errors.New("engine not initialized")
	}
	c.nextID++
	id := c.nextID
	c.handlers[id] = h
	c.active = id
	c.mu.Unlock()

	if len(files) > 0 {
		if err := eng.WriteFiles(files); err != nil {
			c.removeHandler(id)
			return 0, err
		}
	}
	if err := eng.Execute(id, code); err != nil {
		c.removeHandler(id)
		return 0, err
	}
	return id, nil
}

// SendInput forwards a human-supplied value (nil means cancelled) to the
// execution currently awaiting input.
func (c *Client) SendInput(id int64, value *string) error {
	c.mu.Lock()
	eng := c.eng
	active := c.active
	c.mu.Unlock()
	if eng == nil || active != id {
		return ErrNoActiveInput
	}
	return eng.SendInput(value)
}

// Interrupt requests cooperative cancellation of whatever is running.
func (c *Client) Interrupt() {
	c.mu.Lock()
	eng := c.eng
	c.mu.Unlock()
	if eng != nil {
		_ = eng.Interrupt()
	}
}

// ForceTerminate discards the engine outright. Every registered handler is
// failed with a termination error and removed; a subsequent Execute
// re-initializes from scratch (written files are gone).
func (c *Client) ForceTerminate() {
	c.mu.Lock()
	eng := c.eng
	handlers := c.handlers
	boot := c.boot
	c.eng = nil
	c.ready = false
	c.boot = nil
	c.handlers = make(map[int64]Handler)
	c.active = 0
	c.mu.Unlock()

	if eng != nil {
		eng.Kill()
	}
	if boot != nil {
		c.finishBoot(boot, errors.New("engine forcefully terminated"))
	}
	for _, h := range handlers {
		h.OnError("execution engine forcefully terminated")
	}
	c.log.Debug("engine force-terminated")
}

// Close tears down the engine at application shutdown.
func (c *Client) Close() {
	c.ForceTerminate()
}

// dispatch routes engine events until the engine dies. Runs as a goroutine
// per engine instance.
func (c *Client) dispatch(eng engineHandle) {
	for {
		select {
		case <-eng.Done():
			return
		case ev := <-eng.Events():
			c.handleEvent(eng, ev)
		}
	}
}

func (c *Client) handleEvent(eng engineHandle, ev engine.Event) {
	switch ev := ev.(type) {
	case engine.Progress:
		if h := c.activeHandler(); h != nil {
			h.OnProgress(ev.Percent, ev.Message)
		}
	case engine.Ready:
		c.mu.Lock()
		sameEngine := c.eng == eng
		boot := c.boot
		if sameEngine {
			c.ready = true
			c.boot = nil
		}
		c.mu.Unlock()
		if sameEngine && boot != nil {
			c.finishBoot(boot, nil)
		}
	case engine.FilesWritten:
		c.log.Debug("files written", "count", ev.Count)
	case engine.Output:
		if h := c.handlerFor(ev.JobID); h != nil {
			h.OnOutput(ev.Text, ev.Stream)
		}
	case engine.InputRequest:
		if h := c.handlerFor(ev.JobID); h != nil {
			h.OnInputRequest(ev.Prompt)
		}
	case engine.Complete:
		h := c.takeHandler(ev.JobID)
		if h != nil {
			h.OnComplete(Result{
				Stdout:      ev.Stdout,
				Stderr:      ev.Stderr,
				Err:         ev.Err,
				Interrupted: ev.Interrupted,
				Value:       ev.Result,
			})
		}
	case engine.ProtocolError:
		c.handleProtocolError(eng, ev.Message)
	}
}

// handleProtocolError fails the bootstrap when the engine dies before ready;
// after ready it fails (and removes) the active handler.
func (c *Client) handleProtocolError(eng engineHandle, msg string) {
	c.mu.Lock()
	ready := c.ready
	boot := c.boot
	sameEngine := c.eng == eng
	var h Handler
	if ready && c.active != 0 {
		h = c.handlers[c.active]
		delete(c.handlers, c.active)
		c.active = 0
	}
	if !ready && sameEngine {
		c.eng = nil
		c.boot = nil
	}
	c.mu.Unlock()

	if !ready {
		if boot != nil {
			c.finishBoot(boot, errors.New(msg))
		}
		c.discard(eng)
		return
	}
	if h != nil {
		h.OnError(msg)
	} else {
		c.log.Warn("protocol error with no active execution", "message", msg)
	}
}

func (c *Client) finishBoot(boot *inflight, err error) {
	c.mu.Lock()
	select {
	case <-boot.done:
		c.mu.Unlock()
		return
	default:
	}
	boot.err = err
	close(boot.done)
	c.mu.Unlock()
}

func (c *Client) discard(eng engineHandle) {
	c.mu.Lock()
	if c.eng == eng {
		c.eng = nil
		c.ready = false
		c.boot = nil
	}
	c.mu.Unlock()
	eng.Kill()
}

func (c *Client) activeHandler() Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == 0 {
		return nil
	}
	return c.handlers[c.active]
}

func (c *Client) handlerFor(id int64) Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[id]
}

// takeHandler removes and returns the handler for a terminal event, clearing
// the active marker when it matches.
func (c *Client) takeHandler(id int64) Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.handlers[id]
	delete(c.handlers, id)
	if c.active == id {
		c.active = 0
	}
	return h
}

func (c *Client) removeHandler(id int64) {
	c.mu.Lock()
	delete(c.handlers, id)
	if c.active == id {
		c.active = 0
	}
	c.mu.Unlock()
}
