package kernel

// spawn.go implements ENVIRONMENT_SPAWN (spec §4.C, §4.E): constructing a
// child process, wiring its reserved handles, relocating any stdin/stdout
// endpoints the caller supplies, and delivering the startup message on the
// new parent channel before the child's body ever runs. The other half of
// the handshake, ProcContext.receiveStartup, runs inside the child's own
// goroutine before Program is invoked: a real CHANNEL_RECV(HandleParent)
// syscall, decoded with proc.DecodeStartup, the same as any later recv a
// process issues on its own.
//
// The original kernel's spawn loads an ELF image and later executes it one
// instruction at a time. This module has no CPU to execute compiled machine
// code on — user-mode execution here is simulated by running a process's
// Program directly as a goroutine, the same substitution internal/sched's
// executor makes for the original's Future/poll machinery. LoadELF
// (internal/proc/elf.go) remains available and is exercised when a caller
// supplies a raw image via SpawnOptions.ELF, for realistic address-space and
// initial-register bookkeeping, but nothing in this module ever dispatches
// into the loaded bytes as instructions.

import (
	"context"
	"time"

	"github.com/smoynes/panda/internal/ipc"
	"github.com/smoynes/panda/internal/proc"
	"github.com/smoynes/panda/internal/res"
	"github.com/smoynes/panda/internal/resources"
)

// ProcContext is the handle a running Program uses to make syscalls and to
// cooperate with the scheduler, standing in for the six argument registers
// and the RIP a real process would use to re-enter the kernel.
type ProcContext struct {
	K   *Kernel
	PID uint64

	// Args and Env are decoded from the startup message receiveStartup
	// reads off HandleParent before Program ever runs (spec §4.C, §6):
	// the first call a spawned process's runtime makes is a blocking recv
	// on PARENT, and these fields are that recv's decoded result, not a
	// shortcut around it. Root, which has no parent, leaves them as the
	// arguments k.Root was called with.
	Args []string
	Env  map[string]string

	info       *proc.ProcessInfo
	checkpoint func()
	sleep      func(time.Duration)
}

// receiveStartup performs the blocking CHANNEL_RECV(HandleParent) every
// spawned process's runtime issues before running any of its own code
// (spec §4.C), decoding the result into Args/Env. A failure here (the
// startup message was somehow malformed or absent) leaves Args/Env nil
// rather than aborting the process; Program still runs.
func (pc *ProcContext) receiveStartup() {
	buf := make([]byte, ipc.MaxMessageSize)

	result, err := pc.Send(res.HandleParent, OpChannelRecv, Args{Buf: buf})
	if err != nil {
		return
	}

	startup, err := proc.DecodeStartup(buf[:result.N])
	if err != nil {
		return
	}

	pc.Args = startup.Args
	pc.Env = startup.Env
}

// Send issues a syscall as this process, against handle.
func (pc *ProcContext) Send(handle res.HandleID, op Op, args Args) (Result, error) {
	return pc.K.Send(pc.PID, handle, op, args)
}

// Checkpoint is a voluntary preemption safe-point (spec §4.D): a CPU-bound
// loop calls this periodically so the quantum timer can still preempt it, and
// so a PROCESS_SIGNAL StopImmediately delivered mid-loop is noticed promptly.
func (pc *ProcContext) Checkpoint() {
	pc.checkpoint()
	checkKilled(pc.info)
}

// Sleep blocks the calling process for d via the cooperative deadline wheel.
func (pc *ProcContext) Sleep(d time.Duration) {
	pc.sleep(d)
	checkKilled(pc.info)
}

// Program is a process's entire body: the Go closure standing in for
// compiled user-mode code in this host simulation. Its return value is the
// process's exit code, used when the body returns normally rather than
// calling PROCESS_EXIT explicitly.
type Program func(pc *ProcContext) int32

// processExit is panicked by the PROCESS_EXIT syscall handler to unwind a
// Program immediately, the same way a real process's exit() never returns
// to its caller. Spawn's wrapper recovers exactly this type; anything else
// is a genuine user panic, scored as exit code 101 per spec.md §6.
type processExit struct{ code int32 }

// SpawnOptions configures ENVIRONMENT_SPAWN (spec §4.E).
type SpawnOptions struct {
	Program Program

	// ELF, if non-empty, is loaded into the child's address space via
	// proc.LoadELF before Program runs, exercising segment mapping and
	// initial register bookkeeping even though nothing executes those
	// bytes as instructions.
	ELF []byte

	Args []string
	Env  map[string]string

	// Stdin/Stdout, if set, name channel endpoints already held by the
	// spawning process; they are relocated (removed from the parent's
	// table, not released) into the child's STDIN/STDOUT slots.
	Stdin, Stdout       res.HandleID
	HasStdin, HasStdout bool

	ChannelCapacity int
	MailboxCapacity int

	// HasMailboxAttach and MailboxMask implement ENVIRONMENT_SPAWN's
	// optional mailbox/mask parameters (spec §6): when set, the parent's
	// default mailbox is attached to the returned ProcessHandle so that
	// PROCESS_EXITED is delivered there instead of requiring an explicit
	// PROCESS_WAIT poll.
	HasMailboxAttach bool
	MailboxMask      res.EventMask
}

// Spawn creates a child of the process identified by parentPID, wires its
// reserved handles, transmits the startup message on the new parent channel,
// and registers it with the scheduler. It returns the child's pid and the
// handle id of the ProcessHandle installed in the parent's table.
func (k *Kernel) Spawn(parentPID uint64, opts SpawnOptions) (uint64, res.HandleID, error) {
	k.mu.Lock()
	parent, ok := k.processes[parentPID]
	k.mu.Unlock()

	if !ok {
		return 0, 0, res.ErrInvalidHandle
	}

	if opts.Program == nil {
		return 0, 0, res.ErrInvalidArgument
	}

	child := proc.New(k.frames, parentPID)

	if len(opts.ELF) > 0 {
		saved, err := child.LoadELF(k.frames, opts.ELF)
		if err != nil {
			child.Space.Destroy()
			return 0, 0, res.ErrInvalidArgument
		}

		child.Saved = saved
	}

	capacity := opts.ChannelCapacity
	if capacity == 0 {
		capacity = k.cfg.ChannelCapacity
	}

	mailboxCapacity := opts.MailboxCapacity
	if mailboxCapacity == 0 {
		mailboxCapacity = k.cfg.MailboxCapacity
	}

	parentSide, childSide := ipc.NewPair(capacity)

	mailbox := ipc.NewMailbox(mailboxCapacity)
	mailbox.BindWaker(func() { child.Waker.Wake() })

	_ = child.Handles.InsertAt(res.HandleSelf, newSelfCap(child.Info, child.Waker))
	_ = child.Handles.InsertAt(res.HandleEnvironment, environmentMarker{})
	_ = child.Handles.InsertAt(res.HandleParent, childSide)
	_ = child.Handles.InsertAt(res.HandleMailbox, mailbox)

	if opts.HasStdin {
		r, ok := parent.Handles.Remove(opts.Stdin)
		if !ok {
			child.Handles.Close()
			child.Space.Destroy()

			return 0, 0, res.ErrInvalidHandle
		}

		_ = child.Handles.InsertAt(res.HandleStdin, r)
	}

	if opts.HasStdout {
		r, ok := parent.Handles.Remove(opts.Stdout)
		if !ok {
			child.Handles.Close()
			child.Space.Destroy()

			return 0, 0, res.ErrInvalidHandle
		}

		_ = child.Handles.InsertAt(res.HandleStdout, r)
	}

	processHandle := resources.NewSpawnHandle(parentSide, child.Info, child.Waker)

	handleID, err := parent.Handles.Insert(processHandle)
	if err != nil {
		child.Handles.Close()
		child.Space.Destroy()

		return 0, 0, err
	}

	if opts.HasMailboxAttach {
		if mb, ok := getResource[res.Mailbox](parent, res.HandleMailbox); ok {
			_ = mb.Attach(handleID, opts.MailboxMask)

			exitWaker := proc.NewWaker(0)
			exitWaker.Bind(func(uint64) { mb.PostEvent(handleID, res.ProcessExited) })
			child.Info.AddWaker(exitWaker)
		}
	}

	startup, err := proc.EncodeStartup(proc.Startup{Args: opts.Args, Env: opts.Env})
	if err != nil {
		return 0, 0, res.ErrInvalidArgument
	}

	if _, err := parentSide.Send(startup, false); err != nil {
		return 0, 0, err
	}

	k.mu.Lock()
	k.processes[child.PID] = child
	k.mu.Unlock()

	k.sched.Spawn(k.ctx, child.PID, child.Waker, func(ctx context.Context, checkpoint func(), sleep func(time.Duration)) {
		pc := &ProcContext{K: k, PID: child.PID, info: child.Info, checkpoint: checkpoint, sleep: sleep}

		code := k.runProgram(func(pc *ProcContext) int32 {
			pc.receiveStartup()
			return opts.Program(pc)
		}, pc)

		child.Exit(code)

		k.mu.Lock()
		delete(k.processes, child.PID)
		k.mu.Unlock()
	})

	return child.PID, handleID, nil
}

// runProgram invokes prog, converting a processExit panic into its exit
// code and any other panic into exit code 101 (spec.md §6, "101 = user
// panic"), matching a real process's fault-terminates-only-itself guarantee
// (spec §7).
func (k *Kernel) runProgram(prog Program, pc *ProcContext) (code int32) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(processExit); ok {
				code = pe.code
				return
			}

			code = 101
		}
	}()

	return prog(pc)
}

// Root creates the first process in the kernel, with no parent. It is the
// only process not created via Spawn, since ENVIRONMENT_SPAWN requires an
// existing parent to own the ProcessHandle.
func (k *Kernel) Root(prog Program, args []string, env map[string]string) uint64 {
	root := proc.New(k.frames, 0)

	mailbox := ipc.NewMailbox(k.cfg.MailboxCapacity)
	mailbox.BindWaker(func() { root.Waker.Wake() })

	_ = root.Handles.InsertAt(res.HandleSelf, newSelfCap(root.Info, root.Waker))
	_ = root.Handles.InsertAt(res.HandleEnvironment, environmentMarker{})
	_ = root.Handles.InsertAt(res.HandleMailbox, mailbox)

	k.mu.Lock()
	k.processes[root.PID] = root
	k.mu.Unlock()

	k.sched.Spawn(k.ctx, root.PID, root.Waker, func(ctx context.Context, checkpoint func(), sleep func(time.Duration)) {
		pc := &ProcContext{K: k, PID: root.PID, Args: args, Env: env, info: root.Info, checkpoint: checkpoint, sleep: sleep}

		code := k.runProgram(prog, pc)

		root.Exit(code)

		k.mu.Lock()
		delete(k.processes, root.PID)
		k.mu.Unlock()
	})

	return root.PID
}
