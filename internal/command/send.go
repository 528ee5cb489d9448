package command

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lessonlab/codepad/internal/config"
	"github.com/lessonlab/codepad/internal/storage"
	"github.com/lessonlab/codepad/internal/workspace"
)

// SendCommand writes a snippet handoff record into the state directory. The
// next 'codepad edit' consumes it once and imports the snippet into the mode
// matching its language.
type SendCommand struct {
	*BaseCommand
	config   *config.Config
	stateDir string
	lang     string
	kind     string
	stdin    io.Reader
}

// NewSendCommand creates a new send command.
func NewSendCommand(cfg *config.Config) *SendCommand {
	return &SendCommand{
		BaseCommand: NewBaseCommand(
			"send",
			"Send a snippet to the editor",
			"send [options] <file|->",
		),
		config: cfg,
		kind:   string(workspace.KindExecutable),
		stdin:  os.Stdin,
	}
}

// SetupFlags configures the flags for the send command.
func (c *SendCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.stateDir, "state", "", "Workspace state directory (default: resolved from config)")
	fs.StringVar(&c.lang, "lang", "", "Snippet language: js, html, css, json (default: from the file extension)")
	fs.StringVar(&c.kind, "kind", string(workspace.KindExecutable), "Document kind: executable, template, error-example")
}

// Execute writes the handoff record.
func (c *SendCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("exactly one file (or '-' for stdin) is required")
	}

	var code []byte
	var err error
	source := args[0]
	if source == "-" {
		code, err = io.ReadAll(c.stdin)
	} else {
		code, err = os.ReadFile(source)
	}
	if err != nil {
		return fmt.Errorf("reading snippet: %w", err)
	}

	lang := c.lang
	if lang == "" && source != "-" {
		lang = strings.TrimPrefix(filepath.Ext(source), ".")
	}
	if lang == "" {
		lang = "js"
	}

	kind := workspace.Kind(c.kind)
	switch kind {
	case workspace.KindExecutable, workspace.KindTemplate, workspace.KindErrorExample:
	default:
		return fmt.Errorf("unknown document kind: %s", c.kind)
	}

	dir := c.stateDir
	if dir == "" {
		dir = config.DefaultSchema().Resolve(c.config, "state.dir")
	}
	if dir == "" {
		dir, err = storage.DefaultDir()
		if err != nil {
			return fmt.Errorf("resolving state directory: %w", err)
		}
	}
	store, err := storage.Open(dir, slog.Default())
	if err != nil {
		return fmt.Errorf("opening workspace state: %w", err)
	}
	defer store.Close()

	rec := workspace.Handoff{Code: string(code), Language: lang, Kind: kind}
	if err := workspace.WriteHandoff(store, rec); err != nil {
		return fmt.Errorf("writing handoff record: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, "Snippet queued. It will be imported by the next 'codepad edit'.")
	return nil
}
