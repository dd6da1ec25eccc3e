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

// DemoMailbox demonstrates mailbox event aggregation (spec §8 scenario 3):
// many children are spawned with their ProcessHandle attached to the
// parent's mailbox, and draining the mailbox delivers a PROCESS_EXITED
// event for each, without the parent polling each one individually.
func DemoMailbox() cli.Command {
	return new(demoMailbox)
}

type demoMailbox struct {
	n int
}

var _ cli.Command = (*demoMailbox)(nil)

func (demoMailbox) Description() string {
	return "spawn children whose exits are aggregated into one mailbox"
}

func (demoMailbox) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `
demo-mailbox [ -n count ]

Spawn count children, each with its ProcessHandle attached to the caller's
mailbox under PROCESS_EXITED. Wait for one mailbox event per child, then
print how many events were received.`)

	return err
}

func (d *demoMailbox) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("demo-mailbox", flag.ExitOnError)
	fs.IntVar(&d.n, "n", 32, "number of children to spawn")

	return fs
}

func (d *demoMailbox) Run(_ context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	k := kernel.New(kernel.Config{})
	defer k.Close()

	exit := 0

	runToCompletion(k, func(pc *kernel.ProcContext) {
		for i := 0; i < d.n; i++ {
			_, err := pc.Send(res.HandleEnvironment, kernel.OpEnvironmentSpawn, kernel.Args{
				HasMailboxAttach: true,
				Mask:             res.ProcessExited,
				Program: func(childPC *kernel.ProcContext) int32 {
					return 0
				},
			})
			if err != nil {
				logger.Error("spawn", "i", i, "err", err)
				exit = 1

				return
			}
		}

		seen := 0

		for seen < d.n {
			_, err := pc.Send(res.HandleMailbox, kernel.OpMailboxWait, kernel.Args{})
			if err != nil {
				logger.Error("mailbox_wait", "err", err)
				exit = 1

				return
			}

			seen++
		}

		fmt.Fprintf(out, "received %d PROCESS_EXITED events\n", seen)
	})

	return exit
}
