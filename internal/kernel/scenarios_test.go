package kernel

// scenarios_test.go exercises the end-to-end behaviours the module's
// blocking-syscall, scheduling, and signal-delivery pieces are built to
// satisfy together, rather than any one piece in isolation.

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/smoynes/panda/internal/ipc"
	"github.com/smoynes/panda/internal/mem"
	"github.com/smoynes/panda/internal/res"
)

// TestScenarioPipelineSumDeliveredToParent spawns a child connected to the
// parent by a channel pair, has it sum 1..10 and send the result over its
// relocated stdout, and checks the parent receives exactly 55 on the other
// end — round-tripping through a blocking CHANNEL_RECV that must wait for
// the child to actually run.
func TestScenarioPipelineSumDeliveredToParent(tt *testing.T) {
	tt.Parallel()

	k := newTestKernel(tt, Config{})

	runRoot(k, func(pc *ProcContext) {
		pair, err := pc.Send(res.HandleEnvironment, OpChannelCreatePair, Args{})
		if err != nil {
			tt.Errorf("create_pair: %v", err)
			return
		}

		_, err = pc.Send(res.HandleEnvironment, OpEnvironmentSpawn, Args{
			Stdout:    pair.Handle2,
			HasStdout: true,
			Program: func(childPC *ProcContext) int32 {
				var sum int32
				for i := int32(1); i <= 10; i++ {
					sum += i
				}

				buf := make([]byte, 4)
				binary.LittleEndian.PutUint32(buf, uint32(sum))

				if _, err := childPC.Send(res.HandleStdout, OpChannelSend, Args{Buf: buf}); err != nil {
					return 1
				}

				return 0
			},
		})
		if err != nil {
			tt.Errorf("spawn: %v", err)
			return
		}

		buf := make([]byte, 4)

		recv, err := pc.Send(pair.Handle, OpChannelRecv, Args{Buf: buf})
		if err != nil {
			tt.Errorf("recv: %v", err)
			return
		}

		if sum := binary.LittleEndian.Uint32(buf[:recv.N]); sum != 55 {
			tt.Errorf("want 55, got %d", sum)
		}
	})
}

// TestScenarioStopImmediatelyKillsWithinOneQuantum signals a child stuck in a
// Checkpoint-only loop (no voluntary yield) and confirms PROCESS_WAIT sees it
// terminated with exit code -9, rather than hanging or requiring the child's
// cooperation.
func TestScenarioStopImmediatelyKillsWithinOneQuantum(tt *testing.T) {
	tt.Parallel()

	k := newTestKernel(tt, Config{Quantum: 2 * time.Millisecond})

	runRoot(k, func(pc *ProcContext) {
		spawn, err := pc.Send(res.HandleEnvironment, OpEnvironmentSpawn, Args{
			Program: func(childPC *ProcContext) int32 {
				for {
					childPC.Checkpoint()
				}
			},
		})
		if err != nil {
			tt.Errorf("spawn: %v", err)
			return
		}

		if _, err := pc.Send(spawn.Handle, OpProcessSignal, Args{Signal: res.SignalStopImmediately}); err != nil {
			tt.Errorf("signal: %v", err)
			return
		}

		wait, err := pc.Send(spawn.Handle, OpProcessWait, Args{})
		if err != nil {
			tt.Errorf("wait: %v", err)
			return
		}

		if !wait.Exited || wait.ExitCode != -9 {
			tt.Errorf("want exited with code -9, got exited=%v code=%d", wait.Exited, wait.ExitCode)
		}
	})
}

// TestScenarioMailboxOverflowDropsWithoutPanic attaches many more channel
// endpoints to a small-capacity mailbox than it can hold pending entries for,
// drives events on all of them (first reads, then peer closes), and checks
// the mailbox never grows past its bound and still delivers what it can —
// no panic, no unbounded growth.
func TestScenarioMailboxOverflowDropsWithoutPanic(tt *testing.T) {
	tt.Parallel()

	const capacity = 16
	const n = 512

	k := newTestKernel(tt, Config{MailboxCapacity: capacity})

	runRoot(k, func(pc *ProcContext) {
		p := pc.K.processes[pc.PID]

		mb, ok := getResource[res.Mailbox](p, res.HandleMailbox)
		if !ok {
			tt.Errorf("default mailbox missing")
			return
		}

		ours := make([]res.HandleID, n)
		peers := make([]res.HandleID, n)

		for i := 0; i < n; i++ {
			pair, err := pc.Send(res.HandleEnvironment, OpChannelCreatePair, Args{})
			if err != nil {
				tt.Errorf("create_pair %d: %v", i, err)
				return
			}

			ours[i], peers[i] = pair.Handle, pair.Handle2

			ep, ok := getResource[*ipc.Endpoint](p, ours[i])
			if !ok {
				tt.Errorf("endpoint %d missing", i)
				return
			}

			ep.AttachMailbox(mb, ours[i])

			if err := mb.Attach(ours[i], res.ChannelReadable|res.ChannelClosed); err != nil {
				tt.Errorf("attach %d: %v", i, err)
				return
			}
		}

		for i := 0; i < n; i++ {
			if _, err := pc.Send(peers[i], OpChannelSend, Args{Buf: []byte("hi"), NonBlock: true}); err != nil {
				tt.Errorf("send %d: %v", i, err)
			}
		}

		for i := 0; i < n; i++ {
			if _, err := pc.Send(peers[i], OpFileClose, Args{}); err != nil {
				tt.Errorf("close %d: %v", i, err)
			}
		}

		seen := 0

		for {
			if _, _, err := mb.Wait(true); err != nil {
				break
			}

			seen++
		}

		if seen == 0 {
			tt.Errorf("want at least one delivered event")
		}

		if seen > capacity {
			tt.Errorf("want at most %d pending entries, got %d", capacity, seen)
		}
	})
}

// TestScenarioHeapGrowthAndReuse grows and fully shrinks the heap twenty
// times, checking that pages freed by one round are available again in the
// next rather than leaking.
func TestScenarioHeapGrowthAndReuse(tt *testing.T) {
	tt.Parallel()

	const hundredMiB = 100 << 20

	k := newTestKernel(tt, Config{})

	runRoot(k, func(pc *ProcContext) {
		for round := 0; round < 20; round++ {
			grown, err := pc.Send(res.HandleSelf, OpProcessBrk, Args{NewBrk: mem.HeapBase + hundredMiB})
			if err != nil {
				tt.Errorf("round %d grow: %v", round, err)
				return
			}

			if grown.Brk != mem.HeapBase+hundredMiB {
				tt.Errorf("round %d: want brk %d, got %d", round, mem.HeapBase+hundredMiB, grown.Brk)
			}

			shrunk, err := pc.Send(res.HandleSelf, OpProcessBrk, Args{NewBrk: mem.HeapBase})
			if err != nil {
				tt.Errorf("round %d shrink: %v", round, err)
				return
			}

			if shrunk.Brk != mem.HeapBase {
				tt.Errorf("round %d: want brk %d, got %d", round, mem.HeapBase, shrunk.Brk)
			}
		}
	})
}

// TestScenarioPreemptionAllFourSumsCorrect runs the parent and three spawned
// children each summing 0..10,000,000 concurrently under a short quantum,
// cooperating only via periodic Checkpoint calls (no voluntary yield), and
// checks every one of the four lands on the exact expected total.
func TestScenarioPreemptionAllFourSumsCorrect(tt *testing.T) {
	tt.Parallel()

	const upto = 10_000_000

	want := int64(upto) * (int64(upto) + 1) / 2

	sumTo := func(pc *ProcContext) int64 {
		var sum int64

		for i := int64(0); i <= upto; i++ {
			sum += i

			if i%4096 == 0 {
				pc.Checkpoint()
			}
		}

		return sum
	}

	k := newTestKernel(tt, Config{Quantum: time.Millisecond})

	runRoot(k, func(pc *ProcContext) {
		var mu sync.Mutex

		results := make(map[uint64]int64, 3)
		handles := make([]res.HandleID, 3)

		for i := range handles {
			spawn, err := pc.Send(res.HandleEnvironment, OpEnvironmentSpawn, Args{
				Program: func(childPC *ProcContext) int32 {
					s := sumTo(childPC)

					mu.Lock()
					results[childPC.PID] = s
					mu.Unlock()

					return 0
				},
			})
			if err != nil {
				tt.Errorf("spawn %d: %v", i, err)
				return
			}

			handles[i] = spawn.Handle
		}

		parentSum := sumTo(pc)

		for i, h := range handles {
			wait, err := pc.Send(h, OpProcessWait, Args{})
			if err != nil {
				tt.Errorf("wait %d: %v", i, err)
				continue
			}

			if !wait.Exited || wait.ExitCode != 0 {
				tt.Errorf("child %d: want exited with code 0, got exited=%v code=%d", i, wait.Exited, wait.ExitCode)
			}
		}

		if parentSum != want {
			tt.Errorf("parent: want %d, got %d", want, parentSum)
		}

		mu.Lock()
		defer mu.Unlock()

		if len(results) != len(handles) {
			tt.Errorf("want %d child results, got %d", len(handles), len(results))
		}

		for pid, s := range results {
			if s != want {
				tt.Errorf("pid %d: want %d, got %d", pid, want, s)
			}
		}
	})
}

// fakeKeyboard is a minimal res.EventSource standing in for a real
// console.KeyboardSource, which requires an actual TTY to construct. It
// exercises the exact blockOnEventSource path: Poll then BindWaker then
// block, with events delivered from another goroutine.
type fakeKeyboard struct {
	mu      sync.Mutex
	pending []res.Event
	wake    func()
}

func (f *fakeKeyboard) Poll() (res.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return res.Event{}, false
	}

	ev := f.pending[0]
	f.pending = f.pending[1:]

	return ev, true
}

func (f *fakeKeyboard) Waker() res.Waker { return noopWaker{} }

func (f *fakeKeyboard) BindWaker(fn func()) {
	f.mu.Lock()
	f.wake = fn
	f.mu.Unlock()
}

func (f *fakeKeyboard) Release() {}

func (f *fakeKeyboard) push(ev res.Event) {
	f.mu.Lock()
	f.pending = append(f.pending, ev)
	wake := f.wake
	f.mu.Unlock()

	if wake != nil {
		wake()
	}
}

type noopWaker struct{}

func (noopWaker) Wake() {}

var _ res.EventSource = (*fakeKeyboard)(nil)

// TestScenarioKeyboardReadRestartsAfterWouldBlock blocks on FILE_READ against
// an event source with nothing pending, then delivers exactly one event from
// another goroutine, and checks the blocked read wakes with that one event —
// no duplicate, no drop — and that a second, non-blocking read correctly
// reports nothing further pending.
func TestScenarioKeyboardReadRestartsAfterWouldBlock(tt *testing.T) {
	tt.Parallel()

	kb := &fakeKeyboard{}

	k := newTestKernel(tt, Config{})
	k.RegisterScheme("keyboard", func(_ *Kernel, _ string) (res.Resource, error) {
		return kb, nil
	})

	runRoot(k, func(pc *ProcContext) {
		open, err := pc.Send(res.HandleEnvironment, OpEnvironmentOpen, Args{URI: "keyboard:/pci/00:03.0"})
		if err != nil {
			tt.Errorf("open: %v", err)
			return
		}

		go func() {
			time.Sleep(20 * time.Millisecond)
			kb.push(res.Event{Kind: res.EventKey, Code: 30, Value: res.KeyPress})
		}()

		buf := make([]byte, 4)

		read, err := pc.Send(open.Handle, OpFileRead, Args{Buf: buf})
		if err != nil {
			tt.Errorf("read: %v", err)
			return
		}

		if read.N != 4 {
			tt.Errorf("want 4 bytes, got %d", read.N)
			return
		}

		if buf[0] != byte(res.EventKey) || buf[3] != byte(res.KeyPress) {
			tt.Errorf("unexpected event encoding: %v", buf)
		}

		if _, err := pc.Send(open.Handle, OpFileRead, Args{Buf: buf, NonBlock: true}); err != res.ErrQueueEmpty {
			tt.Errorf("second read: want ErrQueueEmpty (no duplicate delivery), got %v", err)
		}
	})
}
