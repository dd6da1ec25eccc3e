package mem

// mapping.go implements Mapping, the reference-counted description of how a range
// of virtual pages is backed (spec §3, §4.A).

import (
	"sync/atomic"
)

// Perm is the set of permissions a mapping grants.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

// Backing describes what physical storage a Mapping's pages draw from.
type Backing interface {
	backing()
}

// FramesBacking is a mapping backed by ordinary, refcounted Frames: one per virtual
// page, in order. Releasing the mapping releases each frame.
type FramesBacking struct {
	Frames []Frame
}

func (FramesBacking) backing() {}

// MmioBacking is a mapping onto a fixed device region (e.g. a framebuffer) that the
// memory subsystem does not own. Unlike FramesBacking, releasing an MmioBacking
// mapping does not free anything: the device, not the frame allocator, owns the
// region's lifetime.
type MmioBacking struct {
	Addr PhysAddr
	Size uint64
}

func (MmioBacking) backing() {}

type mappingState struct {
	base    VirtAddr
	size    uint64
	perm    Perm
	backing Backing
	refs    int32
}

// Mapping is a reference-counted virtual range description: its base address, size,
// permissions, and backing. Clone/Release mirror Frame's reference counting.
type Mapping struct {
	s *mappingState
}

// NewFramesMapping creates a mapping over frames, one per page, starting at base.
func NewFramesMapping(base VirtAddr, perm Perm, frames []Frame) Mapping {
	return Mapping{s: &mappingState{
		base:    base,
		size:    uint64(len(frames)) * PageSize,
		perm:    perm,
		backing: FramesBacking{Frames: frames},
		refs:    1,
	}}
}

// NewMmioMapping creates a mapping over a fixed device-owned physical region.
func NewMmioMapping(base VirtAddr, perm Perm, phys PhysAddr, size uint64) Mapping {
	return Mapping{s: &mappingState{
		base:    base,
		size:    alignUp(size),
		perm:    perm,
		backing: MmioBacking{Addr: phys, Size: alignUp(size)},
		refs:    1,
	}}
}

func (m Mapping) Base() VirtAddr  { return m.s.base }
func (m Mapping) Size() uint64    { return m.s.size }
func (m Mapping) Perm() Perm      { return m.s.perm }
func (m Mapping) Backing() Backing { return m.s.backing }

// Contains reports whether addr falls within the mapping's range.
func (m Mapping) Contains(addr VirtAddr) bool {
	return addr >= m.s.base && uint64(addr-m.s.base) < m.s.size
}

// Clone returns a new reference to the same mapping, incrementing its reference
// count.
func (m Mapping) Clone() Mapping {
	atomic.AddInt32(&m.s.refs, 1)
	return m
}

// Release drops one reference. On the last release, frame-backed mappings release
// each of their frames; MMIO-backed mappings release nothing, since the memory
// subsystem never owned that region.
func (m Mapping) Release() {
	if atomic.AddInt32(&m.s.refs, -1) != 0 {
		return
	}

	if fb, ok := m.s.backing.(FramesBacking); ok {
		for _, f := range fb.Frames {
			f.Release()
		}
	}
}

// RefCount returns the current number of live references, for tests.
func (m Mapping) RefCount() int32 { return atomic.LoadInt32(&m.s.refs) }
