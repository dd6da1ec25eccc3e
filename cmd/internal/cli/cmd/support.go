package cmd

import "github.com/smoynes/panda/internal/kernel"

// runToCompletion spawns fn as k's root process and blocks until it
// returns, the synchronization every demo command needs since
// kernel.Kernel.Send requires the calling pid to be a registered process.
func runToCompletion(k *kernel.Kernel, fn func(pc *kernel.ProcContext)) {
	done := make(chan struct{})

	k.Root(func(pc *kernel.ProcContext) int32 {
		defer close(done)
		fn(pc)

		return 0
	}, nil, nil)

	<-done
}
