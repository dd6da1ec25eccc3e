package kernel

// syscall.go implements Send, the single entry point spec.md §4.E describes:
// `send(handle, op, a0, a1, a2, a3) -> isize`. Here handle and op are typed
// parameters and the four argument registers are replaced by Args, but the
// routing is the same: resolve handle against the calling process's table
// (the reserved ids are themselves entries in the table, per
// internal/res/handle.go), then dispatch on op.
//
// Blocking operations follow the pattern internal/ipc's resources already
// establish: a resource method returns res.ErrWouldBlock instead of parking
// the calling goroutine, and this dispatcher is the only place that turns
// that into an actual block, via internal/sched.Block, before retrying —
// "extract the resource, drop the lock, then operate" (spec §5) holds
// throughout, since no resource method here is ever called while k.mu is
// held.

import (
	"errors"

	"github.com/smoynes/panda/internal/ipc"
	"github.com/smoynes/panda/internal/proc"
	"github.com/smoynes/panda/internal/res"
	"github.com/smoynes/panda/internal/resources"
)

// Send is the kernel's unified syscall entry point.
func (k *Kernel) Send(pid uint64, handle res.HandleID, op Op, args Args) (Result, error) {
	k.mu.Lock()
	p, ok := k.processes[pid]
	k.mu.Unlock()

	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	switch op {
	case OpEnvironmentOpen:
		return k.doEnvironmentOpen(p, args)
	case OpEnvironmentSpawn:
		return k.doEnvironmentSpawn(p, args)
	case OpEnvironmentOpenDir:
		return k.doEnvironmentOpenDir(p, args)
	case OpChannelCreatePair:
		return k.doChannelCreatePair(p, args)
	case OpFileReadDir:
		return k.doFileReadDir(p, handle, args)
	case OpFileRead:
		return k.doFileRead(p, handle, args)
	case OpFileWrite:
		return k.doFileWrite(p, handle, args)
	case OpFileSeek:
		return k.doFileSeek(p, handle, args)
	case OpFileStat:
		return k.doFileStat(p, handle)
	case OpFileClose:
		return k.doFileClose(p, handle)
	case OpChannelSend:
		return k.doChannelSend(p, handle, args)
	case OpChannelRecv:
		return k.doChannelRecv(p, handle, args)
	case OpMailboxCreate:
		return k.doMailboxCreate(p, args)
	case OpMailboxWait:
		return k.doMailboxWait(p, handle, args)
	case OpMailboxPoll:
		return k.doMailboxPoll(p, handle)
	case OpSurfaceInfo:
		return k.doSurfaceInfo(p, handle)
	case OpSurfaceBlit:
		return k.doSurfaceBlit(p, handle, args)
	case OpSurfaceFill:
		return k.doSurfaceFill(p, handle, args)
	case OpSurfaceFlush:
		return k.doSurfaceFlush(p, handle)
	case OpSurfaceUpdateParams:
		return Result{}, nil
	case OpBufferAlloc:
		return k.doBufferAlloc(p, args)
	case OpBufferResize:
		return k.doBufferResize(p, handle, args)
	case OpBufferFree:
		return k.doFileClose(p, handle)
	case OpFileReadBuffer:
		return k.doFileReadBuffer(p, handle, args)
	case OpFileWriteBuffer:
		return k.doFileWriteBuffer(p, handle, args)
	case OpProcessYield:
		k.sched.Yield(pid)
		checkKilled(p.Info)

		return Result{}, nil
	case OpProcessExit:
		panic(processExit{code: args.ExitCode})
	case OpProcessGetPID:
		return Result{PID: pid}, nil
	case OpProcessWait:
		return k.doProcessWait(p, handle)
	case OpProcessSignal:
		return k.doProcessSignal(p, handle, args)
	case OpProcessBrk:
		return k.doProcessBrk(p, args)
	default:
		return Result{}, res.ErrInvalidArgument
	}
}

func (k *Kernel) doEnvironmentOpen(p *proc.Process, args Args) (Result, error) {
	r, err := k.resolveURI(args.URI)
	if err != nil {
		return Result{}, err
	}

	id, err := p.Handles.Insert(r)
	if err != nil {
		r.Release()
		return Result{}, err
	}

	if args.HasMailboxAttach {
		if mb, ok := getResource[res.Mailbox](p, res.HandleMailbox); ok {
			if ep, ok := r.(*ipc.Endpoint); ok {
				ep.AttachMailbox(mb, id)
			}

			_ = mb.Attach(id, args.Mask)
		}
	}

	return Result{Handle: id}, nil
}

func (k *Kernel) doEnvironmentSpawn(p *proc.Process, args Args) (Result, error) {
	childPID, handle, err := k.Spawn(p.PID, SpawnOptions{
		Program:          args.Program,
		ELF:              args.Buf,
		Args:             args.ProcessArgs,
		Env:              args.Env,
		Stdin:            args.Stdin,
		Stdout:           args.Stdout,
		HasStdin:         args.HasStdin,
		HasStdout:        args.HasStdout,
		HasMailboxAttach: args.HasMailboxAttach,
		MailboxMask:      args.Mask,
	})
	if err != nil {
		return Result{}, err
	}

	return Result{PID: childPID, Handle: handle}, nil
}

func (k *Kernel) doEnvironmentOpenDir(p *proc.Process, args Args) (Result, error) {
	r, err := k.resolveURI(args.URI)
	if err != nil {
		return Result{}, err
	}

	dir, ok := r.(res.Directory)
	if !ok {
		r.Release()
		return Result{}, res.ErrNotSupported
	}

	id, err := p.Handles.Insert(dir)
	if err != nil {
		dir.Release()
		return Result{}, err
	}

	return Result{Handle: id}, nil
}

func (k *Kernel) doChannelCreatePair(p *proc.Process, args Args) (Result, error) {
	capacity := args.Index
	if capacity <= 0 {
		capacity = int64(k.cfg.ChannelCapacity)
	}

	a, b := ipc.NewPair(int(capacity))

	idA, err := p.Handles.Insert(a)
	if err != nil {
		a.Release()
		b.Release()

		return Result{}, err
	}

	idB, err := p.Handles.Insert(b)
	if err != nil {
		if removed, ok := p.Handles.Remove(idA); ok {
			removed.Release()
		}

		b.Release()

		return Result{}, err
	}

	return Result{Handle: idA, Handle2: idB}, nil
}

// checkKilled panics with the process's own exit code once it has one,
// unwinding the calling goroutine the same way PROCESS_EXIT does. Every
// blocking retry loop calls this right after waking from
// internal/sched.Block, since a PROCESS_SIGNAL StopImmediately delivered
// while blocked only wakes the goroutine — it cannot reach into another
// goroutine's stack to stop it, so the woken loop must notice for itself.
func checkKilled(info *proc.ProcessInfo) {
	if code, exited := info.ExitCode(); exited {
		panic(processExit{code: code})
	}
}

// getResource resolves handle from p's table and type-asserts it to T,
// reporting ok=false if either step fails.
func getResource[T any](p *proc.Process, handle res.HandleID) (T, bool) {
	var zero T

	r, ok := p.Handles.Get(handle)
	if !ok {
		return zero, false
	}

	t, ok := r.(T)

	return t, ok
}

func (k *Kernel) doFileReadDir(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	d, ok := getResource[res.Directory](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	e, ok := d.Entry(int(args.Index))
	if !ok {
		return Result{}, res.ErrNotFound
	}

	return Result{Entry: e, HasEntry: true}, nil
}

func (k *Kernel) doFileRead(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	r, ok := p.Handles.Get(handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	if src, ok := r.(res.EventSource); ok {
		return k.blockOnEventSource(p, src, args)
	}

	blk, ok := r.(res.Block)
	if !ok {
		return Result{}, res.ErrNotReadable
	}

	n, err := blk.Read(args.Buf)

	return Result{N: n}, err
}

// blockOnEventSource implements FILE_READ against a keyboard-like resource
// (spec §8 scenario 6): poll; if nothing is pending and the caller allows
// blocking, register on the source's waker and block, then retry.
func (k *Kernel) blockOnEventSource(p *proc.Process, src res.EventSource, args Args) (Result, error) {
	for {
		ev, ok := src.Poll()
		if ok {
			n := encodeEvent(ev, args.Buf)
			return Result{N: n}, nil
		}

		if args.NonBlock {
			return Result{}, res.ErrQueueEmpty
		}

		if bindable, ok := src.(interface{ BindWaker(func()) }); ok {
			bindable.BindWaker(func() { p.Waker.Wake() })
		}

		p.Waker.Clear()
		k.sched.Block(p.PID)
		checkKilled(p.Info)
	}
}

func encodeEvent(ev res.Event, buf []byte) int {
	enc := []byte{byte(ev.Kind), byte(ev.Code), byte(ev.Code >> 8), byte(ev.Value)}
	return copy(buf, enc)
}

func (k *Kernel) doFileWrite(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	blk, ok := getResource[res.Block](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	n, err := blk.Write(args.Buf)

	return Result{N: n}, err
}

func (k *Kernel) doFileSeek(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	blk, ok := getResource[res.Block](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	off, err := blk.Seek(args.Offset, args.Whence)

	return Result{N: int(off)}, err
}

func (k *Kernel) doFileStat(p *proc.Process, handle res.HandleID) (Result, error) {
	blk, ok := getResource[res.Block](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	st, err := blk.Stat()

	return Result{Stat: st}, err
}

func (k *Kernel) doFileClose(p *proc.Process, handle res.HandleID) (Result, error) {
	r, ok := p.Handles.Remove(handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	r.Release()

	return Result{}, nil
}

func (k *Kernel) doChannelSend(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	ep, ok := getResource[res.ChannelEndpoint](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	for {
		n, err := ep.Send(args.Buf, args.NonBlock)
		if !errors.Is(err, res.ErrWouldBlock) {
			return Result{N: n}, err
		}

		if binder, ok := ep.(interface{ BindSenderWaker(func()) }); ok {
			binder.BindSenderWaker(func() { p.Waker.Wake() })
		}

		p.Waker.Clear()
		k.sched.Block(p.PID)
		checkKilled(p.Info)
	}
}

func (k *Kernel) doChannelRecv(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	ep, ok := getResource[res.ChannelEndpoint](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	for {
		n, err := ep.Recv(args.Buf, args.NonBlock)
		if !errors.Is(err, res.ErrWouldBlock) {
			return Result{N: n}, err
		}

		if binder, ok := ep.(interface{ BindReceiverWaker(func()) }); ok {
			binder.BindReceiverWaker(func() { p.Waker.Wake() })
		}

		p.Waker.Clear()
		k.sched.Block(p.PID)
		checkKilled(p.Info)
	}
}

func (k *Kernel) doMailboxCreate(p *proc.Process, args Args) (Result, error) {
	mb := ipc.NewMailbox(int(args.Index))
	mb.BindWaker(func() { p.Waker.Wake() })

	id, err := p.Handles.Insert(mb)
	if err != nil {
		return Result{}, err
	}

	return Result{Handle: id}, nil
}

func (k *Kernel) doMailboxWait(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	mb, ok := getResource[res.Mailbox](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	for {
		h, bits, err := mb.Wait(args.NonBlock)
		if !errors.Is(err, res.ErrWouldBlock) {
			return Result{EventHandle: h, EventBits: bits}, err
		}

		p.Waker.Clear()
		k.sched.Block(p.PID)
		checkKilled(p.Info)
	}
}

func (k *Kernel) doMailboxPoll(p *proc.Process, handle res.HandleID) (Result, error) {
	mb, ok := getResource[res.Mailbox](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	h, bits, err := mb.Wait(true)

	return Result{EventHandle: h, EventBits: bits}, err
}

func (k *Kernel) doSurfaceInfo(p *proc.Process, handle res.HandleID) (Result, error) {
	s, ok := getResource[res.Surface](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	return Result{Info: s.Info()}, nil
}

func (k *Kernel) doSurfaceBlit(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	s, ok := getResource[res.Surface](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	err := s.Blit(args.X, args.Y, args.W, args.H, args.Buf, args.SrcStride)

	return Result{}, err
}

func (k *Kernel) doSurfaceFill(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	s, ok := getResource[res.Surface](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	err := s.Fill(args.X, args.Y, args.W, args.H, args.Colour)

	return Result{}, err
}

func (k *Kernel) doSurfaceFlush(p *proc.Process, handle res.HandleID) (Result, error) {
	s, ok := getResource[res.Surface](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	return Result{}, s.Flush(nil)
}

func (k *Kernel) doBufferAlloc(p *proc.Process, args Args) (Result, error) {
	buf, err := resources.NewSharedBuffer(k.frames, args.Size)
	if err != nil {
		return Result{}, res.ErrOutOfMemory
	}

	id, err := p.Handles.Insert(buf)
	if err != nil {
		buf.Release()
		return Result{}, err
	}

	return Result{Handle: id}, nil
}

func (k *Kernel) doBufferResize(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	old, ok := p.Handles.Remove(handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	oldBuf, ok := old.(res.Buffer)
	if !ok {
		_ = p.Handles.InsertAt(handle, old)
		return Result{}, res.ErrInvalidHandle
	}

	newBuf, err := resources.NewSharedBuffer(k.frames, args.Size)
	if err != nil {
		_ = p.Handles.InsertAt(handle, old)
		return Result{}, res.ErrOutOfMemory
	}

	copy(newBuf.Bytes(), oldBuf.Bytes())
	oldBuf.Release()

	if err := p.Handles.InsertAt(handle, newBuf); err != nil {
		newBuf.Release()
		return Result{}, err
	}

	return Result{Handle: handle}, nil
}

func (k *Kernel) doFileReadBuffer(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	blk, ok := getResource[res.Block](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	buf, ok := getResource[res.Buffer](p, args.BufferHandle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	n, err := blk.Read(buf.Bytes())

	return Result{N: n}, err
}

func (k *Kernel) doFileWriteBuffer(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	blk, ok := getResource[res.Block](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	buf, ok := getResource[res.Buffer](p, args.BufferHandle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	n, err := blk.Write(buf.Bytes())

	return Result{N: n}, err
}

func (k *Kernel) doProcessWait(p *proc.Process, handle res.HandleID) (Result, error) {
	pcap, ok := getResource[res.ProcessCap](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	for {
		code, exited := pcap.ExitCode()
		if exited {
			return Result{ExitCode: code, Exited: true}, nil
		}

		k.mu.Lock()
		child := k.processes[pcap.PID()]
		k.mu.Unlock()

		if child == nil {
			// Exited and already reaped from the registry between our
			// ExitCode check and here; ExitCode on the handle still
			// reflects the final code, set once before removal.
			code, exited = pcap.ExitCode()
			return Result{ExitCode: code, Exited: exited}, nil
		}

		child.Info.AddWaker(p.Waker)
		p.Waker.Clear()
		k.sched.Block(p.PID)
		checkKilled(p.Info)
	}
}

func (k *Kernel) doProcessSignal(p *proc.Process, handle res.HandleID, args Args) (Result, error) {
	pcap, ok := getResource[res.ProcessCap](p, handle)
	if !ok {
		return Result{}, res.ErrInvalidHandle
	}

	if args.Signal == res.SignalStopImmediately {
		k.mu.Lock()
		target := k.processes[pcap.PID()]
		k.mu.Unlock()

		if target == nil {
			return Result{}, res.ErrNotFound
		}

		// SetExitCode makes the kill visible to PROCESS_WAIT immediately.
		// Only target's own goroutine may leave the scheduler (internal/sched
		// requires Exit to be called by the exiting pid itself), so Wake just
		// returns it to Runnable if it was Blocked; its own checkKilled call,
		// the next time it reaches a retry loop, Checkpoint, or Yield, is what
		// actually unwinds it via the processExit panic.
		target.Info.SetExitCode(-9)
		target.Waker.Wake()

		return Result{}, nil
	}

	for {
		err := pcap.Signal(args.Signal)
		if !errors.Is(err, res.ErrWouldBlock) {
			return Result{}, err
		}

		if binder, ok := pcap.(interface{ BindSenderWaker(func()) }); ok {
			binder.BindSenderWaker(func() { p.Waker.Wake() })
		}

		p.Waker.Clear()
		k.sched.Block(p.PID)
		checkKilled(p.Info)
	}
}

func (k *Kernel) doProcessBrk(p *proc.Process, args Args) (Result, error) {
	brk, err := p.Heap.SetBrk(args.NewBrk)
	if err != nil {
		return Result{Brk: p.Heap.Brk()}, res.ErrOutOfMemory
	}

	return Result{Brk: brk}, nil
}
