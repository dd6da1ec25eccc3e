// Package sched implements the scheduler and cooperative in-kernel executor
// (spec §4.D): process dispatch, preemption, voluntary yield, blocking, and a
// deadline wheel for sleeping async tasks.
package sched

// sched.go declares the process states the scheduler tracks externally to
// internal/proc.Process, per spec.md §4.D. Grounded on
// panda-kernel/src/process.rs's ProcessState enum, extended with Blocked: the
// original only models Runnable/Running because blocking there unwinds all the
// way out to a context switch; this scheduler instead tracks Blocked explicitly
// so Checkpoint/Yield/Block/wake can all operate through one state table.
type ProcessState uint8

const (
	Runnable ProcessState = iota
	Running
	Blocked
)

func (s ProcessState) String() string {
	switch s {
	case Runnable:
		return "RUNNABLE"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}
