// Package cli implements the pandad command-line interface: a Commander
// dispatching to named sub-commands, each owning its own flags and run loop.
// Grounded on the teacher's internal/cli package, generalized from a single
// flat LC-3 command list into the kernel demo/run commands pandad exposes.
package cli

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/smoynes/panda/internal/log"
)

// Command is a pandad sub-command: its own flags, a one-line description for
// the help listing, and the body that runs once flags are parsed.
type Command interface {
	FlagSet() *FlagSet
	Description() string
	Usage(out io.Writer) error
	Run(ctx context.Context, args []string, out io.Writer, logger *log.Logger) int
}

// Commander dispatches os.Args to a Command by matching the first argument
// against each Command's FlagSet name.
type Commander struct {
	ctx context.Context
	log *log.Logger

	help     Command
	commands []Command
}

// New creates a Commander bound to ctx.
func New(ctx context.Context) *Commander {
	return &Commander{ctx: ctx}
}

// WithCommands registers the sub-commands a Commander dispatches to.
func (cli *Commander) WithCommands(cmds []Command) *Commander {
	cli.commands = append([]Command(nil), cmds...)
	return cli
}

// WithHelp installs the command run when no sub-command matches, or none is
// given.
func (cli *Commander) WithHelp(cmd Command) *Commander {
	cli.help = cmd
	return cli
}

// WithLogger installs a formatted logger writing to out and makes it the
// process-wide slog default, so every kernel subsystem logs through it.
func (cli *Commander) WithLogger(out *os.File) *Commander {
	logger := log.NewFormattedLogger(out)
	cli.log = logger
	log.SetDefault(logger)

	return cli
}

// Execute finds the Command named by args[0], parses the remaining
// arguments as its flags, and runs it. It returns the process exit code.
func (cli *Commander) Execute(args []string) int {
	if len(args) == 0 {
		cli.help.Run(cli.ctx, nil, os.Stdout, cli.log)
		return 1
	}

	found := cli.help

	for _, cmd := range cli.commands {
		if args[0] == cmd.FlagSet().Name() {
			found = cmd
		}
	}

	fs := found.FlagSet()

	if err := fs.Parse(args[1:]); err != nil {
		cli.log.Error("parse error", "err", err)
		return 1
	}

	return found.Run(cli.ctx, fs.Args(), os.Stdout, cli.log)
}

// Type aliases from the standard library, so callers need not import flag
// directly to implement Command.
type (
	Flag    = flag.Flag
	FlagSet = flag.FlagSet
)
