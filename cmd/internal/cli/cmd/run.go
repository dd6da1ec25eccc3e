package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/smoynes/panda/cmd/internal/cli"
	"github.com/smoynes/panda/internal/kernel"
	"github.com/smoynes/panda/internal/log"
	"github.com/smoynes/panda/internal/res"
)

// Run spawns a child with the given positional arguments, exercising
// ENVIRONMENT_SPAWN's startup-message delivery (spec §4.C, §6): the child
// decodes its argv/env from the implicit parent channel before running, the
// same path a real child process uses.
func Run() cli.Command {
	return new(run)
}

type run struct {
	env string
}

var _ cli.Command = (*run)(nil)

func (run) Description() string {
	return "spawn a child and print the argv/env it received at startup"
}

func (run) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `
run [ -env k=v,... ] [ arg ]...

Spawn a child process with the given arguments and environment, have it
decode its own startup message, and print what it received.`)

	return err
}

func (r *run) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&r.env, "env", "", "comma-separated k=v environment entries")

	return fs
}

func (r *run) Run(_ context.Context, args []string, out io.Writer, logger *log.Logger) int {
	env := map[string]string{}

	for _, kv := range strings.Split(r.env, ",") {
		if kv == "" {
			continue
		}

		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			logger.Error("malformed -env entry", "entry", kv)
			return 1
		}

		env[k] = v
	}

	k := kernel.New(kernel.Config{})
	defer k.Close()

	exit := 0

	runToCompletion(k, func(pc *kernel.ProcContext) {
		spawn, err := pc.Send(res.HandleEnvironment, kernel.OpEnvironmentSpawn, kernel.Args{
			ProcessArgs: args,
			Env:         env,
			Program: func(childPC *kernel.ProcContext) int32 {
				fmt.Fprintf(out, "child pid=%d argv=%v env=%v\n", childPC.PID, childPC.Args, childPC.Env)
				return 0
			},
		})
		if err != nil {
			logger.Error("spawn", "err", err)
			exit = 1

			return
		}

		wait, err := pc.Send(spawn.Handle, kernel.OpProcessWait, kernel.Args{})
		if err != nil {
			logger.Error("wait", "err", err)
			exit = 1

			return
		}

		fmt.Fprintf(out, "child exited=%v code=%d\n", wait.Exited, wait.ExitCode)
	})

	return exit
}
