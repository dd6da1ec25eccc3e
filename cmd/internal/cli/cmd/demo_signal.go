package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/smoynes/panda/cmd/internal/cli"
	"github.com/smoynes/panda/internal/kernel"
	"github.com/smoynes/panda/internal/log"
	"github.com/smoynes/panda/internal/res"
)

// DemoSignal demonstrates PROCESS_SIGNAL StopImmediately (spec §8 scenario
// 2): a child stuck in a Checkpoint-only loop is force-killed, and the
// parent's PROCESS_WAIT observes the forced exit code.
func DemoSignal() cli.Command {
	return new(demoSignal)
}

type demoSignal struct{}

var _ cli.Command = (*demoSignal)(nil)

func (demoSignal) Description() string {
	return "kill a looping child with PROCESS_SIGNAL and observe its exit code"
}

func (demoSignal) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `
demo-signal

Spawn a child running an infinite Checkpoint loop, send it
PROCESS_SIGNAL(StopImmediately), and print the exit code PROCESS_WAIT
observes.`)

	return err
}

func (demoSignal) FlagSet() *cli.FlagSet {
	return flag.NewFlagSet("demo-signal", flag.ExitOnError)
}

func (demoSignal) Run(_ context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	k := kernel.New(kernel.Config{})
	defer k.Close()

	exit := 0

	runToCompletion(k, func(pc *kernel.ProcContext) {
		spawn, err := pc.Send(res.HandleEnvironment, kernel.OpEnvironmentSpawn, kernel.Args{
			Program: func(childPC *kernel.ProcContext) int32 {
				for {
					childPC.Checkpoint()
				}
			},
		})
		if err != nil {
			logger.Error("spawn", "err", err)
			exit = 1

			return
		}

		if _, err := pc.Send(spawn.Handle, kernel.OpProcessSignal, kernel.Args{Signal: res.SignalStopImmediately}); err != nil {
			logger.Error("signal", "err", err)
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
