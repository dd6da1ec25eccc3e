package sched

// executor.go spawns each process's simulated execution as a pool-managed
// goroutine and provides Sleep, the deadline-wheel-backed primitive behind
// a task's sleep callback and ProcContext.Sleep. Grounded on
// panda-kernel/src/executor/mod.rs and executor/sleep.rs: the original polls
// an async Future cooperatively because Rust has no kernel threads to spend on
// one future per task. Go already gives every process its own goroutine, so
// there is no separate Future/Waker/poll-loop to build — a goroutine blocked
// on a channel receive *is* the pending future. What carries over directly is
// the pattern: task code calls Sleep, which registers a deadline and parks,
// rather than busy-waiting on a clock.
//
// Tasks run through cloudwego/gopkg's gopool rather than a bare `go`
// statement, so a task's panic is recovered and logged instead of taking the
// whole process down — the same worker-pool discipline the teacher's
// retrieved pack uses for background work.

import (
	"context"
	"time"

	"github.com/cloudwego/gopkg/concurrency/gopool"

	"github.com/smoynes/panda/internal/proc"
)

// Task is a process's simulated body. checkpoint must be called periodically
// during CPU-bound stretches so the scheduler can preempt fairly; sleep parks
// the task for the given duration without holding the CPU.
type Task func(ctx context.Context, checkpoint func(), sleep func(d time.Duration))

// Spawn registers pid with the scheduler and runs task in a pooled goroutine.
// The goroutine waits for its first dispatch before task begins, and the
// process is removed from the scheduler when task returns.
func (s *Scheduler) Spawn(ctx context.Context, pid uint64, waker *proc.Waker, task Task) {
	s.Add(pid, waker)

	e := s.lookup(pid)
	if e == nil {
		return
	}

	gopool.CtxGo(ctx, func() {
		select {
		case <-e.turnCh:
		case <-ctx.Done():
			return
		}

		task(ctx,
			func() { s.Checkpoint(pid) },
			func(d time.Duration) { s.Sleep(pid, d) },
		)

		s.Exit(pid)
	})
}

// Sleep blocks pid for d by registering a deadline-wheel wakeup that fires the
// process's waker, then delegating to Block. Grounded on
// executor/sleep.rs's SleepFuture, which registers a deadline with the
// scheduler and returns Pending until it elapses.
func (s *Scheduler) Sleep(pid uint64, d time.Duration) {
	e := s.lookup(pid)
	if e == nil {
		return
	}

	s.deadlines().Register(d, func() { e.waker.Wake() })
	s.Block(pid)
}

// deadlines lazily creates the scheduler's deadline wheel on first use.
func (s *Scheduler) deadlines() *DeadlineWheel {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wheel == nil {
		s.wheel = NewDeadlineWheel()
	}

	return s.wheel
}
