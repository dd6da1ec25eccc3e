package mem

// brk.go implements the demand-grown user heap (spec §4.A, §4.C): a single
// contiguous region that grows and shrinks one page at a time as the process moves
// its program break.

import "fmt"

const (
	// HeapBase is the fixed virtual address at which every process's heap begins.
	HeapBase VirtAddr = 0x0000_4000_0000_0000

	// HeapMaxSize bounds how far a heap may grow, guarding against a runaway brk
	// request exhausting the frame allocator.
	HeapMaxSize uint64 = 256 << 20 // 256 MiB
)

// Heap tracks one process's program break and the frames backing it.
type Heap struct {
	space  *AddressSpace
	frames *FrameAllocator
	brk    VirtAddr // current break; pages are mapped up to brk rounded up to a page
}

// NewHeap creates an empty heap (break == HeapBase, no pages mapped) for space,
// drawing frames from frames.
func NewHeap(space *AddressSpace, frames *FrameAllocator) *Heap {
	return &Heap{space: space, frames: frames, brk: HeapBase}
}

// Brk returns the current program break.
func (h *Heap) Brk() VirtAddr { return h.brk }

// SetBrk moves the program break to newBrk, mapping or unmapping whole pages as
// needed, and returns the resulting break (which is always newBrk on success). A
// request below HeapBase or beyond HeapMaxSize is rejected: the break is left
// unchanged and returned together with an error wrapping ErrOutOfRange.
func (h *Heap) SetBrk(newBrk VirtAddr) (VirtAddr, error) {
	if newBrk < HeapBase {
		return h.brk, fmt.Errorf("%w: brk below heap base", ErrOutOfRange)
	}

	if uint64(newBrk-HeapBase) > HeapMaxSize {
		return h.brk, fmt.Errorf("%w: brk exceeds heap bound", ErrOutOfRange)
	}

	target := roundUpPage(newBrk)
	current := roundUpPage(h.brk)

	switch {
	case target > current:
		if err := h.grow(current, target); err != nil {
			return h.brk, err
		}
	case target < current:
		h.shrink(target, current)
	}

	h.brk = newBrk

	return h.brk, nil
}

// grow maps each new page as its own single-frame Mapping, rather than one
// mapping spanning the whole range, so that a later partial shrink can unmap pages
// one at a time (Unmap only recognizes a mapping's exact base address).
func (h *Heap) grow(from, to VirtAddr) error {
	for va := from; va < to; va += PageSize {
		f, err := h.frames.Allocate(PageSize)
		if err != nil {
			return fmt.Errorf("brk: grow: %w", err)
		}

		m := NewFramesMapping(va, PermRead|PermWrite, []Frame{f})
		if err := h.space.Map(m); err != nil {
			m.Release()
			return fmt.Errorf("brk: grow: %w", err)
		}
	}

	return nil
}

func (h *Heap) shrink(to, from VirtAddr) {
	for va := to; va < from; va += PageSize {
		_ = h.space.Unmap(va)
	}
}

func roundUpPage(v VirtAddr) VirtAddr {
	return VirtAddr(alignUp(uint64(v)))
}
