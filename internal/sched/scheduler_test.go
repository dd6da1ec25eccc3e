package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smoynes/panda/internal/proc"
)

func TestSchedulerDispatchesTwoCooperativeTasksRoundRobin(tt *testing.T) {
	tt.Parallel()

	s := New(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)

	var mu sync.Mutex
	var order []uint64

	const steps = 6

	var wg sync.WaitGroup
	wg.Add(2)

	for _, pid := range []uint64{1, 2} {
		pid := pid

		w := proc.NewWaker(pid)
		s.Spawn(ctx, pid, w, func(taskCtx context.Context, checkpoint func(), sleep func(time.Duration)) {
			defer wg.Done()

			for i := 0; i < steps; i++ {
				mu.Lock()
				order = append(order, pid)
				mu.Unlock()

				s.Yield(pid)
			}
		})
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()

	if len(order) != 2*steps {
		tt.Fatalf("want %d scheduling events, got %d: %v", 2*steps, len(order), order)
	}

	// Every voluntary yield hands off to the other task: no pid should run
	// twice before the other gets a turn.
	for i := 1; i < len(order); i++ {
		if order[i] == order[i-1] {
			tt.Fatalf("want strict alternation, got repeat at index %d: %v", i, order)
		}
	}
}

func TestSchedulerPreemptsLongRunningCheckpointLoop(tt *testing.T) {
	tt.Parallel()

	s := New(2 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)

	var dispatches int64

	done := make(chan struct{})

	w := proc.NewWaker(1)
	s.Spawn(ctx, 1, w, func(taskCtx context.Context, checkpoint func(), sleep func(time.Duration)) {
		defer close(done)

		deadline := time.Now().Add(20 * time.Millisecond)
		for time.Now().Before(deadline) {
			checkpoint()
			atomic.AddInt64(&dispatches, 1)
		}
	})

	<-done

	if atomic.LoadInt64(&dispatches) == 0 {
		tt.Fatal("want the checkpoint loop to have made progress")
	}
}

func TestSchedulerBlockAndWakeReturnsToRunnable(tt *testing.T) {
	tt.Parallel()

	s := New(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)

	resumed := make(chan struct{})

	w := proc.NewWaker(1)
	s.Spawn(ctx, 1, w, func(taskCtx context.Context, checkpoint func(), sleep func(time.Duration)) {
		s.Block(1)
		close(resumed)
	})

	select {
	case <-resumed:
		tt.Fatal("want process to remain blocked until woken")
	case <-time.After(20 * time.Millisecond):
	}

	state, ok := s.State(1)
	if !ok || state != Blocked {
		tt.Fatalf("want pid 1 Blocked, got (%v, %v)", state, ok)
	}

	w.Wake()

	select {
	case <-resumed:
	case <-time.After(time.Second):
		tt.Fatal("want process resumed after wake")
	}
}

func TestSchedulerFairnessAcrossManyProcesses(tt *testing.T) {
	tt.Parallel()

	const n = 4

	s := New(2 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)

	counts := make([]int64, n+1)

	var wg sync.WaitGroup
	wg.Add(n)

	for i := 1; i <= n; i++ {
		pid := uint64(i)

		w := proc.NewWaker(pid)
		s.Spawn(ctx, pid, w, func(taskCtx context.Context, checkpoint func(), sleep func(time.Duration)) {
			defer wg.Done()

			deadline := time.Now().Add(80 * time.Millisecond)
			for time.Now().Before(deadline) {
				checkpoint()
				atomic.AddInt64(&counts[pid], 1)
			}
		})
	}

	wg.Wait()

	var total int64
	for i := 1; i <= n; i++ {
		total += counts[i]
	}

	avg := total / n

	for i := 1; i <= n; i++ {
		c := counts[i]
		if c < avg/4 {
			tt.Errorf("pid %d starved: got %d dispatches, average %d", i, c, avg)
		}
	}
}
