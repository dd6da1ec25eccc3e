package sched

// scheduler.go implements process dispatch: a Runnable queue ordered by
// least-recently-scheduled, preemptive timer-based quantum expiry, and
// voluntary yield/block transitions. Grounded on panda-kernel/src/scheduler.rs,
// whose Scheduler keeps one BinaryHeap<(RTC, ProcessId)> per ProcessState and
// dispatches exec_next_runnable by popping the oldest entry. That design
// assumes a single physical core executing one process at a time with the
// scheduler itself driving a real context switch; here, each process is a
// goroutine that calls back into the scheduler at safe points (Checkpoint,
// Yield, Block), so "dispatch" means granting that goroutine a turn token
// rather than restoring registers.
//
// Unlike the original, which only tracks Runnable/Running, this scheduler adds
// Blocked as a first-class state (spec.md §4.D), so a process waiting on IPC or
// a timer leaves the runnable heap entirely instead of busy-polling.

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/smoynes/panda/internal/proc"
)

const defaultQuantum = 10 * time.Millisecond

// entry is the scheduler's private bookkeeping for one process. state,
// lastScheduled and heapIndex are read and written under Scheduler.mu;
// turnCh and relinquish are the handshake channels a process's goroutine
// uses to synchronize with the dispatch loop and are safe for concurrent use;
// preempting is guarded by the entry's own mu.
type entry struct {
	pid           uint64
	waker         *proc.Waker
	state         ProcessState
	lastScheduled int64
	heapIndex     int

	turnCh     chan struct{} // dispatch loop sends: pid's turn to run
	relinquish chan struct{} // pid's goroutine sends: stepping aside

	preempting bool // set by the quantum timer; cleared at each dispatch
	mu         sync.Mutex
}

func (e *entry) setPreempting(v bool) {
	e.mu.Lock()
	e.preempting = v
	e.mu.Unlock()
}

func (e *entry) isPreempting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.preempting
}

// Scheduler dispatches Runnable processes in least-recently-scheduled order,
// enforces a fixed preemption quantum, and tracks voluntary yields and blocks.
type Scheduler struct {
	quantum time.Duration

	mu       sync.Mutex
	clock    int64
	entries  map[uint64]*entry
	runnable runnableHeap
	wheel    *DeadlineWheel // lazily created by Sleep, via deadlines()

	wake chan struct{} // poked whenever the runnable queue becomes non-empty
}

// New creates a Scheduler with the given preemption quantum. A zero quantum
// selects a 10ms default.
func New(quantum time.Duration) *Scheduler {
	if quantum <= 0 {
		quantum = defaultQuantum
	}

	return &Scheduler{
		quantum: quantum,
		entries: make(map[uint64]*entry),
		wake:    make(chan struct{}, 1),
	}
}

// Add registers pid as Runnable. waker is bound to this scheduler so that a
// later Block/wake cycle can return the process to the Runnable queue.
func (s *Scheduler) Add(pid uint64, waker *proc.Waker) {
	e := &entry{
		pid:        pid,
		waker:      waker,
		state:      Runnable,
		turnCh:     make(chan struct{}, 1),
		relinquish: make(chan struct{}, 1),
	}

	waker.Bind(s.wakePID)

	s.mu.Lock()
	s.entries[pid] = e
	heap.Push(&s.runnable, e)
	s.mu.Unlock()

	s.poke()
}

// State reports pid's current scheduling state. The second return is false if
// pid is unknown (never added, or already exited).
func (s *Scheduler) State(pid uint64) (ProcessState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[pid]
	if !ok {
		return 0, false
	}

	return e.state, true
}

// Checkpoint is a cooperative safe point: process code calls it periodically
// during CPU-bound work. If pid's quantum has expired it transitions
// Running->Runnable and blocks until redispatched; otherwise it returns
// immediately. Checkpoint must only be called by pid's own goroutine.
func (s *Scheduler) Checkpoint(pid uint64) {
	e := s.lookup(pid)
	if e == nil || !e.isPreempting() {
		return
	}

	s.requeue(e)
	e.relinquish <- struct{}{}
	<-e.turnCh
}

// Yield implements the voluntary PROCESS_YIELD operation: pid gives up the
// rest of its quantum immediately and waits to be redispatched.
func (s *Scheduler) Yield(pid uint64) {
	e := s.lookup(pid)
	if e == nil {
		return
	}

	s.requeue(e)
	e.relinquish <- struct{}{}
	<-e.turnCh
}

// Block transitions pid from Running to Blocked and waits until some later
// wake(pid) call (via the waker bound at Add time) returns it to Runnable and
// it is redispatched. The caller must have already arranged for that waker to
// fire — e.g. by registering it with a channel or mailbox — before calling
// Block, or the process would block forever.
func (s *Scheduler) Block(pid uint64) {
	e := s.lookup(pid)
	if e == nil {
		return
	}

	s.mu.Lock()
	e.state = Blocked
	s.mu.Unlock()

	e.relinquish <- struct{}{}
	<-e.turnCh
}

// Exit removes pid from the scheduler permanently. It must be called by pid's
// own goroutine, in place of Yield/Block, as the last thing that goroutine
// does.
func (s *Scheduler) Exit(pid uint64) {
	s.mu.Lock()
	e, ok := s.entries[pid]
	if ok {
		delete(s.entries, pid)
	}
	s.mu.Unlock()

	if ok {
		e.relinquish <- struct{}{}
	}
}

// wakePID is the callback bound to every process's Waker at Add time. It is
// safe to call from any goroutine, including one unrelated to pid.
func (s *Scheduler) wakePID(pid uint64) {
	s.mu.Lock()

	e, ok := s.entries[pid]
	if !ok || e.state != Blocked {
		s.mu.Unlock()
		return
	}

	e.state = Runnable
	heap.Push(&s.runnable, e)
	s.mu.Unlock()

	s.poke()
}

func (s *Scheduler) lookup(pid uint64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.entries[pid]
}

func (s *Scheduler) requeue(e *entry) {
	s.mu.Lock()
	e.state = Runnable
	heap.Push(&s.runnable, e)
	s.mu.Unlock()
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run is the dispatch loop: it repeatedly pops the least-recently-scheduled
// Runnable process, grants it a turn, starts its preemption timer, and waits
// for it to relinquish control (via Checkpoint, Yield, Block, or Exit). It
// returns when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.runnable.Len() == 0 {
			s.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		e := heap.Pop(&s.runnable).(*entry)
		s.clock++
		e.state = Running
		e.lastScheduled = s.clock
		s.mu.Unlock()

		e.setPreempting(false)

		timer := time.AfterFunc(s.quantum, func() { e.setPreempting(true) })
		e.turnCh <- struct{}{}

		select {
		case <-e.relinquish:
		case <-ctx.Done():
			timer.Stop()
			return
		}

		timer.Stop()
	}
}

// runnableHeap is a container/heap min-heap over entries, ordered by
// lastScheduled (ties broken by pid for determinism), so the
// least-recently-scheduled process is always popped next.
type runnableHeap []*entry

func (h runnableHeap) Len() int { return len(h) }

func (h runnableHeap) Less(i, j int) bool {
	if h[i].lastScheduled != h[j].lastScheduled {
		return h[i].lastScheduled < h[j].lastScheduled
	}

	return h[i].pid < h[j].pid
}

func (h runnableHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *runnableHeap) Push(x any) {
	e := x.(*entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *runnableHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return e
}
