package engine

import "errors"

// Stream identifies which guest output stream a line was written to.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Event is a message emitted by the engine to its host. Events for a single
// job are emitted in order on a single channel; the host must not assume any
// other delivery mechanism exists.
type Event interface{ isEvent() }

// Progress reports interpreter bootstrap progress.
type Progress struct {
	Percent int
	Message string
}

// Ready signals that the interpreter is bootstrapped and can execute code.
// A load request after the first one immediately re-emits Ready.
type Ready struct{}

// FilesWritten acknowledges a write_files request.
type FilesWritten struct{ Count int }

// Output is a single guest write to stdout or stderr. Output is streamed as
// it happens, never batched, so a long-running script still shows progress.
type Output struct {
	JobID  int64
	Text   string
	Stream Stream
}

// InputRequest signals that the guest called the input primitive and the job
// is suspended until an input response arrives.
type InputRequest struct {
	JobID  int64
	Prompt string
}

// Complete is the terminal event for a job. A guest runtime error is carried
// in Err, never as a ProtocolError, so output collected up to the failure is
// still delivered. Result holds the rendered value of the last top-level
// expression when it produced one.
type Complete struct {
	JobID       int64
	Stdout      []string
	Stderr      []string
	Err         string
	Interrupted bool
	Result      *string
}

// ProtocolError is an engine-level failure (bootstrap failure, execute
// before ready, overlapping execute). It is not a guest error.
type ProtocolError struct{ Message string }

func (Progress) isEvent()      {}
func (Ready) isEvent()         {}
func (FilesWritten) isEvent()  {}
func (Output) isEvent()        {}
func (InputRequest) isEvent()  {}
func (Complete) isEvent()      {}
func (ProtocolError) isEvent() {}

// request is a message posted into the engine actor.
type request interface{ isRequest() }

type loadReq struct{}
type writeFilesReq struct{ files map[string]string }
type executeReq struct {
	id   int64
	code string
}
type inputResponseReq struct{ value *string }
type interruptReq struct{}

func (loadReq) isRequest()          {}
func (writeFilesReq) isRequest()    {}
func (executeReq) isRequest()       {}
func (inputResponseReq) isRequest() {}
func (interruptReq) isRequest()     {}

var (
	// ErrKilled is returned when posting to an engine that has been torn down.
	ErrKilled = errors.New("engine terminated")
	// ErrInputCancelled is the cancellation-kind error a guest input call
	// fails with when the human dismisses the prompt.
	ErrInputCancelled = errors.New("input cancelled")

	errInterrupted = errors.New("execution interrupted")
)
