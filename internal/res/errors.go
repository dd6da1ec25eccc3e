package res

// errors.go declares the sentinel errors resources and the handle table return.
// The syscall boundary (internal/kernel) maps these to the small negative
// integers of spec.md §7; within the kernel they are returned and wrapped as
// ordinary Go errors, matching the teacher's *interrupt/*acv idiom in
// internal/vm/intr.go of wrapping over a small set of sentinels rather than
// stringly-typed errors.

import "errors"

var (
	ErrInvalidHandle   = errors.New("res: invalid handle")
	ErrInvalidArgument = errors.New("res: invalid argument")
	ErrInvalidAddress  = errors.New("res: invalid address")
	ErrNotFound        = errors.New("res: not found")
	ErrPermissionDenied = errors.New("res: permission denied")
	ErrNotReadable     = errors.New("res: not readable")
	ErrNotWritable     = errors.New("res: not writable")
	ErrNotSupported    = errors.New("res: not supported")
	ErrWouldBlock      = errors.New("res: would block")
	ErrQueueFull       = errors.New("res: queue full")
	ErrQueueEmpty      = errors.New("res: queue empty")
	ErrPeerClosed      = errors.New("res: peer closed")
	ErrBufferTooSmall  = errors.New("res: buffer too small")
	ErrMessageTooLarge = errors.New("res: message too large")
	ErrTooManyHandles  = errors.New("res: too many handles")
	ErrOutOfMemory     = errors.New("res: out of memory")
	ErrIO              = errors.New("res: io error")
	ErrInvalidOffset   = errors.New("res: invalid offset")
)
