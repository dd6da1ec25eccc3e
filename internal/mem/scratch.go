package mem

// scratch.go provides size-classed scratch buffers for kernel-internal copies that
// never become part of a process address space — notably IPC message payloads,
// copied out of a sender's buffer and later into a receiver's. These never need
// unix.Mprotect bracketing, so they are served from a size-classed pool
// (github.com/cloudwego/gopkg/cache/mempool) instead of a dedicated mmap per
// message, which would be wasteful for the small, high-churn allocations IPC
// produces.

import "github.com/cloudwego/gopkg/cache/mempool"

// NewScratchBuffer returns a buffer of exactly size bytes drawn from the pool.
func NewScratchBuffer(size int) []byte {
	return mempool.Malloc(size)
}

// FreeScratchBuffer returns buf, previously obtained from NewScratchBuffer, to the
// pool.
func FreeScratchBuffer(buf []byte) {
	mempool.Free(buf)
}
