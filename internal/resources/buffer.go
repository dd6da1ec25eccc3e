package resources

// buffer.go implements a Buffer resource backed by a mem.Frame, the shared
// memory region spec.md §3 describes as "mapped into both the kernel
// identity map and the owning process's address space". Grounded on
// mem.Frame's refcounted mmap'd region (internal/mem/frame.go); a Buffer is
// simply a frame exposed as a capability rather than mapped behind a
// process's page table, for cases like a compositor back-buffer that a
// process reads/writes directly without going through brk.

import (
	"github.com/smoynes/panda/internal/mem"
	"github.com/smoynes/panda/internal/res"
)

// SharedBuffer is a page-aligned memory region a process can read and write
// directly.
type SharedBuffer struct {
	frame mem.Frame
}

// NewSharedBuffer allocates a buffer of at least size bytes.
func NewSharedBuffer(frames *mem.FrameAllocator, size uint64) (*SharedBuffer, error) {
	frame, err := frames.Allocate(size)
	if err != nil {
		return nil, err
	}

	return &SharedBuffer{frame: frame}, nil
}

func (b *SharedBuffer) Bytes() []byte { return b.frame.Bytes() }

func (b *SharedBuffer) Release() { b.frame.Release() }

var _ res.Buffer = (*SharedBuffer)(nil)
