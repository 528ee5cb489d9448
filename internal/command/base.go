package command

import (
	"flag"
	"io"
)

// Command is one of codepad's fixed subcommands (edit, run, send, config,
// init, help, version). The set is closed: commands are Go code registered at
// startup, never discovered at runtime.
type Command interface {
	// Name is the subcommand token on the command line.
	Name() string

	// Description is the one-line summary shown by help.
	Description() string

	// Usage is the synopsis line, e.g. "run [options] [document|path]".
	Usage() string

	// SetupFlags registers the command's flags. main parses the FlagSet
	// before Execute; a command with no flags leaves it empty.
	SetupFlags(fs *flag.FlagSet)

	// Execute runs the command with the post-flag positional arguments.
	Execute(args []string, stdout, stderr io.Writer) error
}

// BaseCommand carries the static metadata every command shares. Embed it and
// override SetupFlags/Execute.
type BaseCommand struct {
	name    string
	summary string
	usage   string
}

func NewBaseCommand(name, summary, usage string) *BaseCommand {
	return &BaseCommand{name: name, summary: summary, usage: usage}
}

func (c *BaseCommand) Name() string        { return c.name }
func (c *BaseCommand) Description() string { return c.summary }
func (c *BaseCommand) Usage() string       { return c.usage }

// SetupFlags registers nothing; flagless commands inherit it.
func (c *BaseCommand) SetupFlags(fs *flag.FlagSet) {}
