package cmd

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"

	"github.com/smoynes/panda/cmd/internal/cli"
	"github.com/smoynes/panda/internal/kernel"
	"github.com/smoynes/panda/internal/log"
	"github.com/smoynes/panda/internal/res"
)

// DemoPipeline demonstrates a producer/consumer pipeline (spec §8 scenario
// 1): a parent spawns a child connected by a channel pair, the child sums
// 1..10 and sends the result back over its relocated stdout.
func DemoPipeline() cli.Command {
	return new(demoPipeline)
}

type demoPipeline struct{}

var _ cli.Command = (*demoPipeline)(nil)

func (demoPipeline) Description() string {
	return "spawn a child that pipes a computed sum back to its parent"
}

func (demoPipeline) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `
demo-pipeline

Spawn a child process connected to the caller by a channel pair. The child
sums 1..10 and writes the result on its relocated stdout; the parent reads
it back and prints it.`)

	return err
}

func (demoPipeline) FlagSet() *cli.FlagSet {
	return flag.NewFlagSet("demo-pipeline", flag.ExitOnError)
}

func (demoPipeline) Run(_ context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	k := kernel.New(kernel.Config{})
	defer k.Close()

	exit := 0

	runToCompletion(k, func(pc *kernel.ProcContext) {
		pair, err := pc.Send(res.HandleEnvironment, kernel.OpChannelCreatePair, kernel.Args{})
		if err != nil {
			logger.Error("create_pair", "err", err)
			exit = 1

			return
		}

		_, err = pc.Send(res.HandleEnvironment, kernel.OpEnvironmentSpawn, kernel.Args{
			Stdout:    pair.Handle2,
			HasStdout: true,
			Program: func(childPC *kernel.ProcContext) int32 {
				var sum int32
				for i := int32(1); i <= 10; i++ {
					sum += i
				}

				buf := make([]byte, 4)
				binary.LittleEndian.PutUint32(buf, uint32(sum))

				if _, err := childPC.Send(res.HandleStdout, kernel.OpChannelSend, kernel.Args{Buf: buf}); err != nil {
					return 1
				}

				return 0
			},
		})
		if err != nil {
			logger.Error("spawn", "err", err)
			exit = 1

			return
		}

		buf := make([]byte, 4)

		recv, err := pc.Send(pair.Handle, kernel.OpChannelRecv, kernel.Args{Buf: buf})
		if err != nil {
			logger.Error("recv", "err", err)
			exit = 1

			return
		}

		fmt.Fprintf(out, "child reported sum: %d\n", binary.LittleEndian.Uint32(buf[:recv.N]))
	})

	return exit
}
