package command

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"golang.org/x/term"

	"github.com/lessonlab/codepad/internal/config"
	"github.com/lessonlab/codepad/internal/engine"
	"github.com/lessonlab/codepad/internal/executor"
	"github.com/lessonlab/codepad/internal/preprocess"
	"github.com/lessonlab/codepad/internal/storage"
	"github.com/lessonlab/codepad/internal/workspace"
)

// RunCommand executes a document headlessly: no TUI, output to stdout/stderr,
// input() served from stdin.
type RunCommand struct {
	*BaseCommand
	config   *config.Config
	stateDir string
	stdin    io.Reader
}

// NewRunCommand creates a new run command.
func NewRunCommand(cfg *config.Config) *RunCommand {
	return &RunCommand{
		BaseCommand: NewBaseCommand(
			"run",
			"Execute a workspace document or a file without the editor",
			"run [options] [document|path]",
		),
		config: cfg,
		stdin:  os.Stdin,
	}
}

// SetupFlags configures the flags for the run command.
func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.stateDir, "state", "", "Workspace state directory (default: resolved from config)")
}

// Execute runs the target document to completion.
func (c *RunCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 1 {
		return fmt.Errorf("at most one target may be given")
	}

	dir := c.stateDir
	if dir == "" {
		dir = config.DefaultSchema().Resolve(c.config, "state.dir")
	}
	if dir == "" {
		var err error
		dir, err = storage.DefaultDir()
		if err != nil {
			return fmt.Errorf("resolving state directory: %w", err)
		}
	}
	store, err := storage.Open(dir, slog.Default())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Warning: workspace state unavailable (%v)\n", err)
	}
	defer store.Close()

	ws := workspace.NewManager(store, nil, nil, slog.Default())
	files := ws.Snapshot()

	name, source, err := c.resolveTarget(args, ws, files)
	if err != nil {
		return err
	}

	rw := preprocess.New(append(append([]string(nil), preprocess.DefaultBuiltins...), c.config.Preprocessor.ExtraBuiltins...))
	program, code := rw.RewriteProgram(files, name, source)

	client := executor.NewClient(slog.Default())
	defer client.Close()
	client.SetBootTimeout(c.config.Engine.BootTimeout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := client.Initialize(ctx); err != nil {
		return fmt.Errorf("starting interpreter: %w", err)
	}

	echo := true
	if v, ok := c.config.GetCommandOption("run", "echo-input"); ok {
		if b, err := parseBoolOption(v); err == nil {
			echo = b
		}
	}
	h := &runHandler{
		client:  client,
		stdout:  stdout,
		stderr:  stderr,
		stdin:   bufio.NewScanner(c.stdin),
		echo:    echo && !stdinIsTerminal(c.stdin),
		idReady: make(chan struct{}),
		done:    make(chan executor.Result, 1),
		failed:  make(chan string, 1),
	}
	id, err := client.ExecuteWithFiles(ctx, program, code, h)
	if err != nil {
		return err
	}
	h.id = id
	close(h.idReady)

	// Ctrl-C escalates: cooperative interrupt first, hard teardown after the
	// configured grace period.
	go func() {
		<-ctx.Done()
		client.Interrupt()
		time.AfterFunc(c.config.Engine.InterruptGrace, client.ForceTerminate)
	}()

	select {
	case result := <-h.done:
		if result.Value != nil {
			_, _ = fmt.Fprintln(stdout, *result.Value)
		}
		if result.Err != "" {
			_, _ = fmt.Fprintln(stderr, result.Err)
			return fmt.Errorf("execution failed")
		}
		return nil
	case msg := <-h.failed:
		_, _ = fmt.Fprintln(stderr, msg)
		return fmt.Errorf("execution failed")
	}
}

// resolveTarget maps the positional argument to a source document: a path on
// disk wins, then a workspace document name, then the configured or active
// default.
func (c *RunCommand) resolveTarget(args []string, ws *workspace.Manager, files map[string]string) (name, source string, err error) {
	target := ""
	if len(args) == 1 {
		target = args[0]
	}
	if target == "" {
		target, _ = c.config.GetCommandOption("run", "file")
	}
	if target == "" {
		target = ws.Current()
	}
	if target == "" {
		return "", "", fmt.Errorf("nothing to run: the workspace is empty")
	}

	if data, err := os.ReadFile(target); err == nil {
		return filepath.Base(target), string(data), nil
	}
	if content, ok := files[target]; ok {
		return target, content, nil
	}
	return "", "", fmt.Errorf("no such document or file: %s", target)
}

func parseBoolOption(v string) (bool, error) {
	switch v {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value: %s", v)
}

func stdinIsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// runHandler bridges executor events onto plain streams.
type runHandler struct {
	client  *executor.Client
	stdout  io.Writer
	stderr  io.Writer
	stdin   *bufio.Scanner
	echo    bool
	id      int64
	idReady chan struct{}
	done    chan executor.Result
	failed  chan string
}

func (h *runHandler) OnOutput(text string, stream engine.Stream) {
	if stream == engine.StreamStderr {
		_, _ = fmt.Fprintln(h.stderr, text)
		return
	}
	_, _ = fmt.Fprintln(h.stdout, text)
}

func (h *runHandler) OnProgress(percent int, message string) {}

func (h *runHandler) OnInputRequest(prompt string) {
	<-h.idReady
	if prompt != "" {
		_, _ = fmt.Fprint(h.stdout, prompt)
	}
	if !h.stdin.Scan() {
		// stdin exhausted: the guest sees a cancelled input.
		_ = h.client.SendInput(h.id, nil)
		return
	}
	value := h.stdin.Text()
	if h.echo {
		_, _ = fmt.Fprintln(h.stdout, value)
	}
	_ = h.client.SendInput(h.id, &value)
}

func (h *runHandler) OnComplete(result executor.Result) {
	h.done <- result
}

func (h *runHandler) OnError(message string) {
	h.failed <- message
}
