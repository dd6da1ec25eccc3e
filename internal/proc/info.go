package proc

// info.go implements ProcessInfo, the state shared between a process and every
// ProcessHandle observing it, and Waker, the token that marks a blocked process
// runnable again. Grounded on panda-kernel/src/process/info.rs and
// panda-kernel/src/process/waker.rs, with the Arc<Spinlock<..>>/AtomicBool
// fields translated to a sync.Mutex-guarded struct and an atomic.Bool, since Go
// shares state through pointers rather than through explicit reference-counted
// handles.

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Waker marks a single blocked process runnable again. Waking an
// already-runnable or already-exited process is a no-op, never an error: a
// waker may legitimately fire more than once (e.g. a channel close racing a
// send) and firing "late" must be harmless.
type Waker struct {
	signaled atomic.Bool
	pid      uint64
	notify   func(pid uint64) // scheduler callback, set once via Bind
}

// NewWaker creates an unbound, unsignaled waker for pid. Bind must be called
// once the owning scheduler is known, before the waker can usefully fire.
func NewWaker(pid uint64) *Waker {
	return &Waker{pid: pid}
}

// Bind attaches the scheduler callback invoked when this waker fires. It is
// called once, during scheduler registration, to avoid proc importing sched.
func (w *Waker) Bind(notify func(pid uint64)) {
	w.notify = notify
}

// Wake marks the waker signaled and, if bound, notifies the scheduler that pid
// is runnable again.
func (w *Waker) Wake() {
	w.signaled.Store(true)

	if w.notify != nil {
		w.notify(w.pid)
	}
}

// Signaled reports whether Wake has been called since the last Clear.
func (w *Waker) Signaled() bool { return w.signaled.Load() }

// Clear resets the signaled flag, typically just before blocking again.
func (w *Waker) Clear() { w.signaled.Store(false) }

// PID returns the process this waker targets.
func (w *Waker) PID() uint64 { return w.pid }

// ProcessInfo is the externally-visible state of a process: its pid, its exit
// code (set exactly once), and the waker list observers block on. It is shared
// by pointer between the owning Process and any ProcessHandle resources that
// observe it, and lives until the process has exited and every observer has
// released its handle.
type ProcessInfo struct {
	mu       sync.Mutex
	pid      uint64
	debugID  uuid.UUID // correlates log lines across a process's lifetime
	exited   bool
	exitCode int32
	wakers   []*Waker
}

// NewProcessInfo creates the ProcessInfo for a newly constructed process.
func NewProcessInfo(pid uint64) *ProcessInfo {
	return &ProcessInfo{pid: pid, debugID: uuid.New()}
}

func (pi *ProcessInfo) PID() uint64 { return pi.pid }

// DebugID returns a per-process correlation id for log lines, stable for the
// process's whole lifetime.
func (pi *ProcessInfo) DebugID() uuid.UUID { return pi.debugID }

// IsRunning reports whether the process has not yet exited.
func (pi *ProcessInfo) IsRunning() bool {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	return !pi.exited
}

// ExitCode returns the process's exit code and whether it has exited yet.
func (pi *ProcessInfo) ExitCode() (int32, bool) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	return pi.exitCode, pi.exited
}

// SetExitCode records code as the process's exit code, exactly once, and wakes
// every observer. Subsequent calls are no-ops: exit code is set-once by
// construction, matching spec.md §4.C.
func (pi *ProcessInfo) SetExitCode(code int32) {
	pi.mu.Lock()

	if pi.exited {
		pi.mu.Unlock()
		return
	}

	pi.exited = true
	pi.exitCode = code
	wakers := pi.wakers
	pi.wakers = nil

	pi.mu.Unlock()

	for _, w := range wakers {
		w.Wake()
	}
}

// AddWaker registers w to be woken when the process exits. If the process has
// already exited, w is woken immediately.
func (pi *ProcessInfo) AddWaker(w *Waker) {
	pi.mu.Lock()

	if pi.exited {
		pi.mu.Unlock()
		w.Wake()

		return
	}

	pi.wakers = append(pi.wakers, w)
	pi.mu.Unlock()
}
