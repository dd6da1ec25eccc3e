package proc

// process.go implements Process, grounded on panda-kernel/src/process.rs, with
// ELF loading split out into elf.go and the startup message codec into
// startup.go. Scheduling state (Runnable/Running/Blocked) is deliberately not a
// field here: it is the scheduler's to own (spec §4.D), tracked externally by
// internal/sched, so that this package has no scheduling policy baked into it.

import (
	"sync/atomic"

	"github.com/smoynes/panda/internal/mem"
	"github.com/smoynes/panda/internal/res"
)

var nextPID atomic.Uint64

// NewPID allocates a process-unique identifier.
func NewPID() uint64 {
	return nextPID.Add(1)
}

// Process is one running (or blocked, or runnable-but-not-running) program:
// its address space, its handle table, its heap, its saved register state when
// not executing, and the ProcessInfo observers see.
type Process struct {
	PID    uint64
	Parent uint64 // 0 if none

	Space   *mem.AddressSpace
	Handles *res.HandleTable
	Heap    *mem.Heap
	Info    *ProcessInfo
	Waker   *Waker

	// Saved holds the initial register state LoadELF produced for the
	// image's entry point. Nothing in this module resumes a process from it.
	Saved SavedState
}

// New creates a process with a fresh address space, handle table, and heap,
// backed by frames, but does not load any code into it; callers that have an
// ELF image use LoadELF for that.
func New(frames *mem.FrameAllocator, parent uint64) *Process {
	pid := NewPID()
	space := mem.NewAddressSpace()

	p := &Process{
		PID:     pid,
		Parent:  parent,
		Space:   space,
		Handles: res.NewHandleTable(),
		Heap:    mem.NewHeap(space, frames),
		Info:    NewProcessInfo(pid),
		Waker:   NewWaker(pid),
	}

	return p
}

// Exit finalizes a process: records its exit code, releases its handle table
// (and transitively every resource it owned), and destroys its address space.
// Per spec.md §4.C, exit is unreachable from inside the process after this
// runs; the caller (the scheduler) must not resume it.
func (p *Process) Exit(code int32) {
	p.Info.SetExitCode(code)
	p.Handles.Close()
	p.Space.Destroy()
}
