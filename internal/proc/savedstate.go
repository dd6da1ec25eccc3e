// Package proc implements the process model (spec §3, §4.C): ELF loading, saved
// register state, program break, and the externally-visible ProcessInfo a
// ProcessHandle observes.
package proc

// savedstate.go implements SavedState, the general-purpose register file
// LoadELF produces for a freshly loaded image's initial entry. Grounded on
// panda-kernel/src/process/state.rs's SavedState, trimmed to the one call
// site this module actually has: LoadELF's initial-register bookkeeping.
// A real x86-64 kernel also reconstructs SavedState on every blocking
// syscall restart and interrupt, to resume a process exactly where it left
// off; this module has no instruction stream to resume into (internal/sched
// runs a process's Program body as a goroutine instead, parked and woken by
// the Go runtime's own stack, not a saved register file), so those
// constructors have no counterpart here.

// SavedState is the full general-purpose register file plus RIP/RSP/RFLAGS,
// as LoadELF initializes it for a binary's entry point.
type SavedState struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64

	RIP, RSP, RFlags uint64
}

// RFlagsInterrupt is the RFLAGS.IF bit, set on every initial user dispatch so
// interrupts are enabled in user mode.
const RFlagsInterrupt = 1 << 9
