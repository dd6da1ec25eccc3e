// pandad is the command-line interface to the panda microkernel: a host
// process that runs the kernel and its processes entirely as goroutines,
// with every process-to-kernel interaction going through the unified
// send(handle, op, args) syscall.
package main

import (
	"context"
	"os"

	"github.com/smoynes/panda/cmd/internal/cli"
	"github.com/smoynes/panda/cmd/internal/cli/cmd"
)

var commands = []cli.Command{
	cmd.Run(),
	cmd.DemoPipeline(),
	cmd.DemoSignal(),
	cmd.DemoMailbox(),
	cmd.DemoBrk(),
}

func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
