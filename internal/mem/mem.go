// Package mem implements the kernel's memory subsystem: reference-counted physical
// frames, reference-counted virtual mappings, per-process address spaces, demand
// growth of the user heap, and the SMAP and write-protect access brackets.
//
// Real hardware gives a kernel a CR0 write-protect bit, an AC flag, and a physical
// address space it owns outright. This package simulates the same contract on top
// of the host OS: a Frame is backed by a real anonymous golang.org/x/sys/unix.Mmap
// region instead of a slice of real RAM, and the SMAP bracket uses unix.Mprotect to
// actually enforce the user/kernel access rule it describes, rather than merely
// documenting it.
package mem

import "errors"

// PageSize is the unit of allocation and mapping. All frame and mapping sizes are
// multiples of PageSize.
const PageSize = 4096

// VirtAddr is a simulated virtual address.
type VirtAddr uint64

// PhysAddr is the address of a page-aligned region obtained from the frame
// allocator.
type PhysAddr uint64

// Page truncates an address down to its containing page boundary.
func (v VirtAddr) Page() VirtAddr { return v &^ (PageSize - 1) }

// Offset returns the byte offset of the address within its page.
func (v VirtAddr) Offset() uint64 { return uint64(v) & (PageSize - 1) }

var (
	// ErrOutOfMemory is returned when the frame allocator cannot satisfy a request.
	ErrOutOfMemory = errors.New("mem: out of memory")

	// ErrUnaligned is returned when a size or address is not page-aligned.
	ErrUnaligned = errors.New("mem: unaligned")

	// ErrOutOfRange is returned when an address falls outside an allowed region.
	ErrOutOfRange = errors.New("mem: address out of range")

	// ErrNotMapped is returned when a virtual page has no mapping.
	ErrNotMapped = errors.New("mem: not mapped")

	// ErrAlreadyMapped is returned when a mapping already covers a virtual page.
	ErrAlreadyMapped = errors.New("mem: already mapped")

	// ErrAccessDenied is returned by the SMAP bracket when changing a region's
	// protection fails.
	ErrAccessDenied = errors.New("mem: access denied")
)

// alignUp rounds n up to the next multiple of PageSize.
func alignUp(n uint64) uint64 {
	return (n + PageSize - 1) &^ (PageSize - 1)
}
