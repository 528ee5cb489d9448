package executor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonlab/codepad/internal/engine"
)

// fakeEngine implements engineHandle without booting an interpreter.
type fakeEngine struct {
	events chan engine.Event
	done   chan struct{}

	failLoad   bool
	silentLoad bool

	mu        sync.Mutex
	executed  []int64
	wrote     []map[string]string
	inputs    []*string
	interrupt int
	killOnce  sync.Once
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		events: make(chan engine.Event, 64),
		done:   make(chan struct{}),
	}
}

func (f *fakeEngine) Events() <-chan engine.Event { return f.events }
func (f *fakeEngine) Done() <-chan struct{}       { return f.done }

func (f *fakeEngine) Load() error {
	if f.failLoad {
		f.events <- engine.ProtocolError{Message: "interpreter bootstrap failed: no runtime"}
		return nil
	}
	if f.silentLoad {
		return nil
	}
	f.events <- engine.Progress{Percent: 100, Message: "interpreter ready"}
	f.events <- engine.Ready{}
	return nil
}

func (f *fakeEngine) WriteFiles(files map[string]string) error {
	f.mu.Lock()
	f.wrote = append(f.wrote, files)
	f.mu.Unlock()
	f.events <- engine.FilesWritten{Count: len(files)}
	return nil
}

func (f *fakeEngine) Execute(id int64, code string) error {
	f.mu.Lock()
	f.executed = append(f.executed, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) SendInput(value *string) error {
	f.mu.Lock()
	f.inputs = append(f.inputs, value)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Interrupt() error {
	f.mu.Lock()
	f.interrupt++
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Kill() {
	f.killOnce.Do(func() { close(f.done) })
}

func (f *fakeEngine) complete(id int64) {
	f.events <- engine.Complete{JobID: id}
}

// recordingHandler captures handler callbacks for assertions.
type recordingHandler struct {
	mu        sync.Mutex
	outputs   []string
	prompts   []string
	completes []Result
	errors    []string
	completed chan struct{}
	failed    chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		completed: make(chan struct{}, 4),
		failed:    make(chan struct{}, 4),
	}
}

func (h *recordingHandler) OnOutput(text string, stream engine.Stream) {
	h.mu.Lock()
	h.outputs = append(h.outputs, text)
	h.mu.Unlock()
}

func (h *recordingHandler) OnProgress(percent int, message string) {}

func (h *recordingHandler) OnInputRequest(prompt string) {
	h.mu.Lock()
	h.prompts = append(h.prompts, prompt)
	h.mu.Unlock()
}

func (h *recordingHandler) OnComplete(result Result) {
	h.mu.Lock()
	h.completes = append(h.completes, result)
	h.mu.Unlock()
	h.completed <- struct{}{}
}

func (h *recordingHandler) OnError(message string) {
	h.mu.Lock()
	h.errors = append(h.errors, message)
	h.mu.Unlock()
	h.failed <- struct{}{}
}

func (h *recordingHandler) completeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.completes)
}

// newTestClient wires a Client to fake engines, returning the engines it
// created in order.
func newTestClient(t *testing.T, engines ...*fakeEngine) (*Client, *[]*fakeEngine) {
	t.Helper()
	created := &[]*fakeEngine{}
	next := 0
	c := NewClient(nil)
	c.newEngine = func() engineHandle {
		var f *fakeEngine
		if next < len(engines) {
			f = engines[next]
		} else {
			f = newFakeEngine()
		}
		next++
		*created = append(*created, f)
		return f
	}
	t.Cleanup(c.Close)
	return c, created
}

func wait(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for handler callback")
	}
}

func TestInitializeSharesInflightBootstrap(t *testing.T) {
	c, created := newTestClient(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Initialize(context.Background()))
		}()
	}
	wg.Wait()
	assert.Len(t, *created, 1, "concurrent initializes must share one engine")
}

func TestExecuteRejectsOverlap(t *testing.T) {
	c, created := newTestClient(t)
	h := newRecordingHandler()
	id, err := c.Execute(context.Background(), "print(1)", h)
	require.NoError(t, err)
	require.NotZero(t, id)

	_, err = c.Execute(context.Background(), "print(2)", newRecordingHandler())
	assert.ErrorIs(t, err, ErrBusy)

	(*created)[0].complete(id)
	wait(t, h.completed)

	// With the first job terminal, a new execution is accepted again.
	id2, err := c.Execute(context.Background(), "print(3)", newRecordingHandler())
	require.NoError(t, err)
	assert.Greater(t, id2, id, "execution ids are monotonically increasing")
}

func TestHandlerRemovedExactlyOnce(t *testing.T) {
	c, created := newTestClient(t)
	h := newRecordingHandler()
	id, err := c.Execute(context.Background(), "print(1)", h)
	require.NoError(t, err)

	f := (*created)[0]
	f.complete(id)
	wait(t, h.completed)
	// A duplicate terminal event for the same id must find no registration.
	f.complete(id)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.completeCount())
}

func TestEventRouting(t *testing.T) {
	c, created := newTestClient(t)
	h := newRecordingHandler()
	id, err := c.Execute(context.Background(), "x", h)
	require.NoError(t, err)

	f := (*created)[0]
	f.events <- engine.Output{JobID: id, Text: "line", Stream: engine.StreamStdout}
	f.events <- engine.InputRequest{JobID: id, Prompt: "Name: "}
	f.complete(id)
	wait(t, h.completed)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []string{"line"}, h.outputs)
	assert.Equal(t, []string{"Name: "}, h.prompts)
}

func TestSendInputRequiresMatchingID(t *testing.T) {
	c, created := newTestClient(t)
	h := newRecordingHandler()
	id, err := c.Execute(context.Background(), "x", h)
	require.NoError(t, err)

	assert.ErrorIs(t, c.SendInput(id+1, nil), ErrNoActiveInput)
	v := "hello"
	require.NoError(t, c.SendInput(id, &v))
	f := (*created)[0]
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.inputs, 1)
	assert.Equal(t, "hello", *f.inputs[0])
}

func TestForceTerminateFailsHandlersAndSelfHeals(t *testing.T) {
	c, created := newTestClient(t)
	h := newRecordingHandler()
	_, err := c.Execute(context.Background(), "while(true){}", h)
	require.NoError(t, err)

	c.ForceTerminate()
	wait(t, h.failed)
	h.mu.Lock()
	require.Len(t, h.errors, 1)
	assert.Contains(t, h.errors[0], "forcefully terminated")
	h.mu.Unlock()

	select {
	case <-(*created)[0].done:
	default:
		t.Fatal("force terminate did not kill the engine")
	}

	// A subsequent execute bootstraps a fresh engine.
	h2 := newRecordingHandler()
	id2, err := c.Execute(context.Background(), "print(1)", h2)
	require.NoError(t, err)
	assert.Len(t, *created, 2)
	assert.Greater(t, id2, int64(1), "ids keep increasing across engines")
}

func TestBootstrapFailureIsRetryable(t *testing.T) {
	bad := newFakeEngine()
	bad.failLoad = true
	c, created := newTestClient(t, bad)

	err := c.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bootstrap failed"))

	// Retry gets a fresh engine and succeeds.
	require.NoError(t, c.Initialize(context.Background()))
	assert.Len(t, *created, 2)
}

func TestBootstrapTimeout(t *testing.T) {
	quiet := newFakeEngine()
	quiet.silentLoad = true
	c, created := newTestClient(t, quiet)
	c.SetBootTimeout(50 * time.Millisecond)

	err := c.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	select {
	case <-(*created)[0].done:
	case <-time.After(time.Second):
		t.Fatal("timed-out engine was not discarded")
	}
}

func TestExecuteWithFilesOrdersWriteFirst(t *testing.T) {
	c, created := newTestClient(t)
	h := newRecordingHandler()
	files := map[string]string{"util.js": "module.exports = {}"}
	id, err := c.ExecuteWithFiles(context.Background(), files, "x", h)
	require.NoError(t, err)

	f := (*created)[0]
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.wrote, 1, "file snapshot must be written before execute")
	require.Equal(t, []int64{id}, f.executed)
}
