// Package engine hosts a sandboxed ECMAScript interpreter behind a typed
// message protocol. The interpreter runs on a goja_nodejs event loop in its
// own goroutine; the rest of the application only ever posts requests and
// consumes events, so a runaway guest script cannot block the host.
//
// goja.Runtime is not goroutine-safe: every VM access happens via RunOnLoop.
// The single sanctioned exception is Runtime.Interrupt, which is safe to call
// from any goroutine and is the cooperative half of the two-tier cancellation
// story (Kill is the hard half).
package engine

import (
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
)

// Engine is the interpreter host actor. Construct with New; interact only
// through the request methods and the Events channel.
type Engine struct {
	log      *slog.Logger
	requests chan request
	events   chan Event
	done     chan struct{}
	killOnce sync.Once

	// vm is the loop's runtime, stored once at bootstrap so Interrupt can be
	// issued from outside the loop goroutine.
	vm atomic.Pointer[goja.Runtime]

	mu       sync.Mutex
	loop     *eventloop.EventLoop
	files    map[string]string
	active   bool
	activeID int64
	stdout   []string
	stderr   []string
	pending  *pendingInput
}

// pendingInput parks the promise resolvers of a suspended input call. The
// signatures match goja's Runtime.NewPromise; settling an already settled
// promise is the only error they can report, and the pending slot is cleared
// before settling, so that error is discarded at the call sites.
type pendingInput struct {
	resolve func(result any) error
	reject  func(reason any) error
}

// New starts an engine actor. The interpreter itself is not bootstrapped
// until the first load request.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		log:      logger,
		requests: make(chan request, 16),
		events:   make(chan Event, 256),
		done:     make(chan struct{}),
		files:    make(map[string]string),
	}
	go e.run()
	return e
}

// Events returns the engine's event stream. Events are emitted in order; the
// consumer must drain promptly or the buffer applies backpressure to the
// guest.
func (e *Engine) Events() <-chan Event { return e.events }

// Done is closed when the engine has been killed.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Load bootstraps the interpreter. Idempotent: after the first successful
// load the engine immediately re-emits Ready.
func (e *Engine) Load() error { return e.post(loadReq{}) }

// WriteFiles replaces entries in the interpreter's virtual fileset, which
// backs require() resolution for cross-file imports.
func (e *Engine) WriteFiles(files map[string]string) error {
	return e.post(writeFilesReq{files: files})
}

// Execute runs code under the given job id. The caller guarantees at most
// one job is in flight; a violation is reported as a ProtocolError event.
func (e *Engine) Execute(id int64, code string) error {
	return e.post(executeReq{id: id, code: code})
}

// SendInput resumes a job suspended on the input primitive. A nil value
// rejects the suspended call with ErrInputCancelled inside the guest.
func (e *Engine) SendInput(value *string) error {
	return e.post(inputResponseReq{value: value})
}

// Interrupt delivers a best-effort cooperative cancellation. A job parked on
// input is resumed with a cancellation error; a running job has the VM
// interrupt flag raised, which goja checks at safe points.
func (e *Engine) Interrupt() error { return e.post(interruptReq{}) }

// Kill tears the engine down without waiting for the guest. All interpreter
// state, including written files, is lost; the owner must create a fresh
// engine before the next run. Safe to call multiple times.
func (e *Engine) Kill() {
	e.killOnce.Do(func() {
		close(e.done)
		if vm := e.vm.Load(); vm != nil {
			vm.Interrupt(ErrKilled)
		}
		e.mu.Lock()
		loop := e.loop
		e.loop = nil
		e.pending = nil
		e.active = false
		e.mu.Unlock()
		if loop != nil {
			// StopNoWait can still block briefly on the loop internals when a
			// native call is wedged; detach so Kill never does.
			go loop.StopNoWait()
		}
		e.log.Debug("engine killed")
	})
}

func (e *Engine) post(r request) error {
	// Check done first: after Kill both cases can be ready and select would
	// pick one at random, letting a request slip into the buffer.
	select {
	case <-e.done:
		return ErrKilled
	default:
	}
	select {
	case <-e.done:
		return ErrKilled
	case e.requests <- r:
		return nil
	}
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func (e *Engine) run() {
	for {
		select {
		case <-e.done:
			return
		case r := <-e.requests:
			switch r := r.(type) {
			case loadReq:
				e.handleLoad()
			case writeFilesReq:
				e.handleWriteFiles(r.files)
			case executeReq:
				e.handleExecute(r.id, r.code)
			case inputResponseReq:
				e.handleInputResponse(r.value)
			case interruptReq:
				e.handleInterrupt()
			}
		}
	}
}

func (e *Engine) handleLoad() {
	e.mu.Lock()
	loaded := e.loop != nil
	e.mu.Unlock()
	if loaded {
		e.emit(Ready{})
		return
	}

	e.emit(Progress{Percent: 10, Message: "starting interpreter"})

	registry := require.NewRegistryWithLoader(e.loadSource)
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&streamPrinter{engine: e}))
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(true),
	)
	loop.Start()

	e.emit(Progress{Percent: 60, Message: "installing runtime globals"})

	errCh := make(chan error, 1)
	ok := loop.RunOnLoop(func(vm *goja.Runtime) {
		errCh <- e.setupGlobals(vm)
	})
	if !ok {
		e.emit(ProtocolError{Message: "interpreter event loop failed to start"})
		loop.StopNoWait()
		return
	}
	if err := <-errCh; err != nil {
		e.emit(ProtocolError{Message: "interpreter bootstrap failed: " + err.Error()})
		loop.Stop()
		return
	}

	e.mu.Lock()
	e.loop = loop
	e.mu.Unlock()

	e.emit(Progress{Percent: 100, Message: "interpreter ready"})
	e.emit(Ready{})
	e.log.Debug("interpreter bootstrapped")
}

func (e *Engine) handleWriteFiles(files map[string]string) {
	e.mu.Lock()
	for name, content := range files {
		e.files[name] = content
	}
	e.mu.Unlock()
	e.emit(FilesWritten{Count: len(files)})
}

func (e *Engine) handleExecute(id int64, code string) {
	e.mu.Lock()
	if e.loop == nil {
		e.mu.Unlock()
		e.emit(ProtocolError{Message: "execute received before interpreter ready"})
		return
	}
	if e.active {
		e.mu.Unlock()
		e.emit(ProtocolError{Message: "an execution is already in progress"})
		return
	}
	e.active = true
	e.activeID = id
	e.stdout = nil
	e.stderr = nil
	loop := e.loop
	e.mu.Unlock()

	prg, err := compileJob(code)
	if err != nil {
		e.finish(id, err.Error(), false, nil)
		return
	}

	loop.RunOnLoop(func(vm *goja.Runtime) {
		vm.ClearInterrupt()
		if _, runErr := vm.RunProgram(prg); runErr != nil {
			e.finish(id, formatGuestError(runErr), isInterrupt(runErr), nil)
		}
		// On success the async wrapper settles later through the completion
		// callbacks installed by setupGlobals.
	})
}

func (e *Engine) handleInputResponse(value *string) {
	e.mu.Lock()
	p := e.pending
	e.pending = nil
	loop := e.loop
	e.mu.Unlock()
	if p == nil || loop == nil {
		return
	}
	loop.RunOnLoop(func(vm *goja.Runtime) {
		defer e.recoverInterrupt()
		if value == nil {
			_ = p.reject(cancellationError(vm))
			return
		}
		_ = p.resolve(*value)
	})
}

func (e *Engine) handleInterrupt() {
	e.mu.Lock()
	p := e.pending
	e.pending = nil
	loop := e.loop
	e.mu.Unlock()

	// A job suspended on input is not running any guest code, so the VM
	// interrupt flag would sit unchecked forever. Failing the parked call is
	// what actually unwedges it.
	if p != nil && loop != nil {
		loop.RunOnLoop(func(vm *goja.Runtime) {
			defer e.recoverInterrupt()
			_ = p.reject(cancellationError(vm))
		})
		return
	}
	if vm := e.vm.Load(); vm != nil {
		vm.Interrupt(errInterrupted)
	}
}

// setupGlobals installs the guest-facing primitives. Runs on the loop.
func (e *Engine) setupGlobals(vm *goja.Runtime) error {
	e.vm.Store(vm)

	if err := vm.Set("input", e.jsInput(vm)); err != nil {
		return err
	}
	if err := vm.Set("print", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		e.writeOutput(strings.Join(parts, " "), StreamStdout)
		return goja.Undefined()
	}); err != nil {
		return err
	}
	if err := vm.Set(doneCallback, func(v goja.Value) {
		e.finishFromValue(v)
	}); err != nil {
		return err
	}
	return vm.Set(failCallback, func(v goja.Value) {
		e.finishFromReason(v)
	})
}

// jsInput returns the guest input primitive: it emits an input request and
// returns a promise that settles when the host forwards a response.
func (e *Engine) jsInput(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		prompt := ""
		if len(call.Arguments) > 0 && !goja.IsUndefined(call.Arguments[0]) && !goja.IsNull(call.Arguments[0]) {
			prompt = call.Arguments[0].String()
		}
		promise, resolve, reject := vm.NewPromise()
		e.mu.Lock()
		id := e.activeID
		e.pending = &pendingInput{resolve: resolve, reject: reject}
		e.mu.Unlock()
		e.emit(InputRequest{JobID: id, Prompt: prompt})
		return vm.ToValue(promise)
	}
}

func (e *Engine) writeOutput(text string, stream Stream) {
	e.mu.Lock()
	id := e.activeID
	if e.active {
		if stream == StreamStdout {
			e.stdout = append(e.stdout, text)
		} else {
			e.stderr = append(e.stderr, text)
		}
	}
	e.mu.Unlock()
	e.emit(Output{JobID: id, Text: text, Stream: stream})
}

func (e *Engine) finishFromValue(v goja.Value) {
	e.mu.Lock()
	id := e.activeID
	e.mu.Unlock()
	var result *string
	if v != nil && !goja.IsUndefined(v) {
		s := v.String()
		result = &s
	}
	e.finish(id, "", false, result)
}

func (e *Engine) finishFromReason(v goja.Value) {
	e.mu.Lock()
	id := e.activeID
	e.mu.Unlock()
	msg := "unknown error"
	if v != nil {
		msg = v.String()
	}
	e.finish(id, msg, isCancellation(v), nil)
}

// cancelMarker tags the rejection value of a cancelled input so the engine
// can recognize its own cancellation when it bubbles out of the guest. The
// error message is guest-controlled data and must not be used for this.
const cancelMarker = "__codepadInputCancelled"

// cancellationError builds the tagged error a cancelled input rejects with.
// Runs on the loop.
func cancellationError(vm *goja.Runtime) *goja.Object {
	obj := vm.NewGoError(ErrInputCancelled)
	_ = obj.Set(cancelMarker, true)
	return obj
}

// isCancellation reports whether a rejection value carries the cancellation
// tag. Runs on the loop.
func isCancellation(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	m := obj.Get(cancelMarker)
	return m != nil && m.ToBoolean()
}

// finish emits the terminal Complete event for a job exactly once; stale or
// duplicate completions are dropped.
func (e *Engine) finish(id int64, errMsg string, interrupted bool, result *string) {
	e.mu.Lock()
	if !e.active || e.activeID != id {
		e.mu.Unlock()
		return
	}
	e.active = false
	stdout := e.stdout
	stderr := e.stderr
	e.stdout = nil
	e.stderr = nil
	e.pending = nil
	e.mu.Unlock()
	e.emit(Complete{
		JobID:       id,
		Stdout:      stdout,
		Stderr:      stderr,
		Err:         errMsg,
		Interrupted: interrupted,
		Result:      result,
	})
}

// recoverInterrupt converts a VM interrupt surfacing as a panic inside one of
// our loop callbacks into a normal interrupted completion.
func (e *Engine) recoverInterrupt() {
	r := recover()
	if r == nil {
		return
	}
	if err, ok := r.(error); ok && isInterrupt(err) {
		e.mu.Lock()
		id := e.activeID
		e.mu.Unlock()
		e.finish(id, errInterrupted.Error(), true, nil)
		return
	}
	panic(r)
}

// loadSource resolves require() paths against the virtual fileset. Called on
// the loop goroutine by the require registry.
func (e *Engine) loadSource(p string) ([]byte, error) {
	name := strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
	e.mu.Lock()
	defer e.mu.Unlock()
	if content, ok := e.files[name]; ok {
		return []byte(content), nil
	}
	if content, ok := e.files[path.Base(name)]; ok {
		return []byte(content), nil
	}
	return nil, require.ModuleFileDoesNotExistError
}

// streamPrinter routes console output into the event stream, one event per
// write.
type streamPrinter struct{ engine *Engine }

func (p *streamPrinter) Log(s string)   { p.engine.writeOutput(s, StreamStdout) }
func (p *streamPrinter) Warn(s string)  { p.engine.writeOutput(s, StreamStderr) }
func (p *streamPrinter) Error(s string) { p.engine.writeOutput(s, StreamStderr) }
