package kernel

// errors.go maps internal/res's sentinel errors to the small negative
// integers spec.md §7 specifies cross the syscall boundary. Internally,
// errors remain ordinary wrapped Go errors (the teacher's *interrupt/*acv
// idiom in internal/vm/intr.go of a small closed set of sentinels, never
// stringly-typed); ErrorCode exists only at this one boundary.

import (
	"errors"

	"github.com/smoynes/panda/internal/res"
)

// ErrorCode is the negative integer a syscall result encodes an error as.
// Zero and positive values are never error codes.
type ErrorCode int32

const (
	ErrInvalidHandle ErrorCode = -(iota + 1)
	ErrInvalidArgument
	ErrInvalidAddress
	ErrNotFound
	ErrPermissionDenied
	ErrNotReadable
	ErrNotWritable
	ErrNotSupported
	ErrWouldBlock
	ErrQueueFull
	ErrQueueEmpty
	ErrPeerClosed
	ErrBufferTooSmall
	ErrMessageTooLarge
	ErrTooManyHandles
	ErrOutOfMemory
	ErrIO
	ErrInvalidOffset
)

// codeTable pairs each res sentinel with its ErrorCode, checked in order by
// CodeOf since some sentinels wrap others via fmt.Errorf("%w: ...", ...).
var codeTable = []struct {
	err  error
	code ErrorCode
}{
	{res.ErrInvalidHandle, ErrInvalidHandle},
	{res.ErrInvalidArgument, ErrInvalidArgument},
	{res.ErrInvalidAddress, ErrInvalidAddress},
	{res.ErrNotFound, ErrNotFound},
	{res.ErrPermissionDenied, ErrPermissionDenied},
	{res.ErrNotReadable, ErrNotReadable},
	{res.ErrNotWritable, ErrNotWritable},
	{res.ErrNotSupported, ErrNotSupported},
	{res.ErrWouldBlock, ErrWouldBlock},
	{res.ErrQueueFull, ErrQueueFull},
	{res.ErrQueueEmpty, ErrQueueEmpty},
	{res.ErrPeerClosed, ErrPeerClosed},
	{res.ErrBufferTooSmall, ErrBufferTooSmall},
	{res.ErrMessageTooLarge, ErrMessageTooLarge},
	{res.ErrTooManyHandles, ErrTooManyHandles},
	{res.ErrOutOfMemory, ErrOutOfMemory},
	{res.ErrIO, ErrIO},
	{res.ErrInvalidOffset, ErrInvalidOffset},
}

// CodeOf translates err, which must wrap one of internal/res's sentinels, into
// its syscall-boundary ErrorCode. A nil err has no code; callers check for nil
// first. An err matching no known sentinel maps to ErrIO, the closest
// approximation of "something failed beneath this boundary that the caller
// cannot act on more specifically."
func CodeOf(err error) ErrorCode {
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}

	return ErrIO
}
