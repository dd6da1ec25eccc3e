package mem

// frame.go implements the reference-counted physical frame abstraction (spec §3,
// §4.A) and the frame allocator backing it.

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// frameState is the shared, reference-counted backing of a Frame. The last Release
// returns the region to the allocator.
type frameState struct {
	addr  PhysAddr
	bytes []byte // the actual backing storage, always an unix.Mmap region
	refs  int32
	alloc *FrameAllocator
}

// Frame is a contiguous, page-aligned region of physical memory, reference counted:
// cloning (via Clone) shares the backing; the last Release deallocates. While any
// reference exists the frame is never reused by the allocator.
type Frame struct {
	s *frameState
}

// Addr returns the frame's (simulated) physical start address.
func (f Frame) Addr() PhysAddr { return f.s.addr }

// Size returns the frame's size in bytes, always a multiple of PageSize.
func (f Frame) Size() int { return len(f.s.bytes) }

// Bytes exposes the frame's backing storage directly. Callers must not retain the
// slice past a Release.
func (f Frame) Bytes() []byte { return f.s.bytes }

// Clone returns a new reference to the same backing frame, incrementing its
// reference count.
func (f Frame) Clone() Frame {
	atomic.AddInt32(&f.s.refs, 1)
	return f
}

// Release drops one reference. When the last reference is released the frame is
// returned to its allocator.
func (f Frame) Release() {
	if atomic.AddInt32(&f.s.refs, -1) == 0 {
		f.s.alloc.free(f.s)
	}
}

// RefCount returns the current number of live references, for tests and diagnostics.
func (f Frame) RefCount() int32 { return atomic.LoadInt32(&f.s.refs) }

func (f Frame) String() string {
	return fmt.Sprintf("frame{addr: %#x, size: %d, refs: %d}", f.s.addr, f.Size(), f.RefCount())
}

// FrameAllocator hands out Frames, each backed by its own unix.Mmap region. Every
// frame is mmap'd, rather than pooled from the Go heap, because a frame may end up
// mapped into a process's address space and bracketed by the SMAP guard, which
// enforces access with unix.Mprotect — a call only valid against real mmap'd
// pages. Kernel-internal buffers that never become part of an address space (e.g.
// IPC message payloads) use NewScratchBuffer instead, which is pooled.
type FrameAllocator struct {
	mu       sync.Mutex
	next     PhysAddr
	live     int64 // bytes currently allocated, for diagnostics
}

// NewFrameAllocator creates an allocator. There is no fixed backing heap (unlike a
// real kernel's UEFI-declared usable regions) since frames are ultimately backed by
// host memory; the allocator's job is purely to hand out distinct, refcounted
// regions and reclaim them on Release.
func NewFrameAllocator() *FrameAllocator {
	return &FrameAllocator{next: PageSize}
}

// Allocate returns a new Frame of at least size bytes, rounded up to a whole number
// of pages.
func (a *FrameAllocator) Allocate(size uint64) (Frame, error) {
	if size == 0 {
		return Frame{}, fmt.Errorf("%w: zero-size frame", ErrUnaligned)
	}

	size = alignUp(size)

	a.mu.Lock()
	addr := a.next
	a.next += PhysAddr(size)
	a.mu.Unlock()

	buf, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: mmap: %w", ErrOutOfMemory, err)
	}

	atomic.AddInt64(&a.live, int64(size))

	s := &frameState{
		addr:  addr,
		bytes: buf,
		refs:  1,
		alloc: a,
	}

	return Frame{s: s}, nil
}

// Live returns the number of bytes currently allocated (held by at least one
// reference), for tests and diagnostics.
func (a *FrameAllocator) Live() int64 { return atomic.LoadInt64(&a.live) }

func (a *FrameAllocator) free(s *frameState) {
	atomic.AddInt64(&a.live, -int64(len(s.bytes)))
	_ = unix.Munmap(s.bytes)
	s.bytes = nil
}
