package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/smoynes/panda/cmd/internal/cli"
	"github.com/smoynes/panda/internal/kernel"
	"github.com/smoynes/panda/internal/log"
	"github.com/smoynes/panda/internal/mem"
	"github.com/smoynes/panda/internal/res"
)

// DemoBrk demonstrates heap growth and reuse via PROCESS_BRK (spec §8
// scenario 4): repeatedly growing and fully shrinking the heap, checking
// pages freed in one round are available again in the next.
func DemoBrk() cli.Command {
	return new(demoBrk)
}

type demoBrk struct {
	rounds  int
	growMiB int
}

var _ cli.Command = (*demoBrk)(nil)

func (demoBrk) Description() string {
	return "grow and shrink the process heap across many rounds"
}

func (demoBrk) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `
demo-brk [ -rounds n ] [ -grow-mib n ]

Grow the heap by grow-mib megabytes, then shrink it back to base, rounds
times, printing the break address after each half.`)

	return err
}

func (d *demoBrk) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("demo-brk", flag.ExitOnError)
	fs.IntVar(&d.rounds, "rounds", 20, "number of grow/shrink rounds")
	fs.IntVar(&d.growMiB, "grow-mib", 100, "megabytes to grow the heap by each round")

	return fs
}

func (d *demoBrk) Run(_ context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	k := kernel.New(kernel.Config{})
	defer k.Close()

	exit := 0
	growBy := uint64(d.growMiB) << 20

	runToCompletion(k, func(pc *kernel.ProcContext) {
		for round := 0; round < d.rounds; round++ {
			grown, err := pc.Send(res.HandleSelf, kernel.OpProcessBrk, kernel.Args{NewBrk: mem.HeapBase + mem.VirtAddr(growBy)})
			if err != nil {
				logger.Error("brk grow", "round", round, "err", err)
				exit = 1

				return
			}

			shrunk, err := pc.Send(res.HandleSelf, kernel.OpProcessBrk, kernel.Args{NewBrk: mem.HeapBase})
			if err != nil {
				logger.Error("brk shrink", "round", round, "err", err)
				exit = 1

				return
			}

			fmt.Fprintf(out, "round %d: grew to %#x, shrank to %#x\n", round, grown.Brk, shrunk.Brk)
		}
	})

	return exit
}
