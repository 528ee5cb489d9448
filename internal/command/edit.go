package command

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/lessonlab/codepad/internal/config"
	"github.com/lessonlab/codepad/internal/storage"
	"github.com/lessonlab/codepad/internal/termui"
	"github.com/lessonlab/codepad/internal/workspace"
)

// EditCommand launches the interactive editor.
type EditCommand struct {
	*BaseCommand
	config   *config.Config
	version  string
	stateDir string
}

// NewEditCommand creates a new edit command.
func NewEditCommand(cfg *config.Config, version string) *EditCommand {
	return &EditCommand{
		BaseCommand: NewBaseCommand(
			"edit",
			"Open the interactive editor",
			"edit [options]",
		),
		config:  cfg,
		version: version,
	}
}

// SetupFlags configures the flags for the edit command.
func (c *EditCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.stateDir, "state", "", "Workspace state directory (default: resolved from config)")
}

// Execute starts the editor and blocks until it exits.
func (c *EditCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("edit requires an interactive terminal (use 'codepad run' for scripted execution)")
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
		// Degraded store: the session still works, edits just won't persist.
		_, _ = fmt.Fprintf(stderr, "Warning: workspace state unavailable (%v); changes will not be saved.\n", err)
	}
	defer store.Close()

	// A pending handoff record is consumed exactly once, whether or not the
	// import later succeeds.
	var handoff *workspace.Handoff
	if rec, ok := workspace.TakeHandoff(store); ok {
		handoff = &rec
	}

	return termui.Run(termui.Options{
		Config:  c.config,
		Store:   store,
		Handoff: handoff,
		Version: c.version,
		Log:     slog.Default(),
	})
}
