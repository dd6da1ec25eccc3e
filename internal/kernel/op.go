package kernel

// op.go enumerates the syscall operation taxonomy spec.md §4.E names and the
// argument/result shapes Send passes across it. The original ABI packs
// everything into six general-purpose registers (rdi, rsi, rdx, r10, r8, r9);
// this module has no register file to pack, since every process body is a Go
// closure rather than compiled machine code, so Args/Result carry the same
// information as ordinary typed fields instead.

import (
	"github.com/smoynes/panda/internal/mem"
	"github.com/smoynes/panda/internal/res"
)

// Op identifies one syscall operation, the equivalent of the `op` argument in
// rax.
type Op uint32

const (
	OpEnvironmentOpen Op = iota
	OpEnvironmentSpawn
	OpEnvironmentOpenDir
	OpChannelCreatePair
	OpFileReadDir
	OpFileRead
	OpFileWrite
	OpFileSeek
	OpFileStat
	OpFileClose
	OpChannelSend
	OpChannelRecv
	OpMailboxCreate
	OpMailboxWait
	OpMailboxPoll
	OpSurfaceInfo
	OpSurfaceBlit
	OpSurfaceFill
	OpSurfaceFlush
	OpSurfaceUpdateParams
	OpBufferAlloc
	OpBufferResize
	OpBufferFree
	OpFileReadBuffer
	OpFileWriteBuffer
	OpProcessYield
	OpProcessExit
	OpProcessGetPID
	OpProcessWait
	OpProcessSignal
	OpProcessBrk
)

var opNames = map[Op]string{
	OpEnvironmentOpen:     "ENVIRONMENT_OPEN",
	OpEnvironmentSpawn:    "ENVIRONMENT_SPAWN",
	OpEnvironmentOpenDir:  "ENVIRONMENT_OPENDIR",
	OpChannelCreatePair:   "CHANNEL_CREATE_PAIR",
	OpFileReadDir:         "FILE_READDIR",
	OpFileRead:            "FILE_READ",
	OpFileWrite:           "FILE_WRITE",
	OpFileSeek:            "FILE_SEEK",
	OpFileStat:            "FILE_STAT",
	OpFileClose:           "FILE_CLOSE",
	OpChannelSend:         "CHANNEL_SEND",
	OpChannelRecv:         "CHANNEL_RECV",
	OpMailboxCreate:       "MAILBOX_CREATE",
	OpMailboxWait:         "MAILBOX_WAIT",
	OpMailboxPoll:         "MAILBOX_POLL",
	OpSurfaceInfo:         "SURFACE_INFO",
	OpSurfaceBlit:         "SURFACE_BLIT",
	OpSurfaceFill:         "SURFACE_FILL",
	OpSurfaceFlush:        "SURFACE_FLUSH",
	OpSurfaceUpdateParams: "SURFACE_UPDATE_PARAMS",
	OpBufferAlloc:         "BUFFER_ALLOC",
	OpBufferResize:        "BUFFER_RESIZE",
	OpBufferFree:          "BUFFER_FREE",
	OpFileReadBuffer:      "FILE_READ_BUFFER",
	OpFileWriteBuffer:     "FILE_WRITE_BUFFER",
	OpProcessYield:        "PROCESS_YIELD",
	OpProcessExit:         "PROCESS_EXIT",
	OpProcessGetPID:       "PROCESS_GET_PID",
	OpProcessWait:         "PROCESS_WAIT",
	OpProcessSignal:       "PROCESS_SIGNAL",
	OpProcessBrk:          "PROCESS_BRK",
}

func (op Op) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}

	return "OP_UNKNOWN"
}

// Args bundles every operation's possible arguments. Only the fields relevant
// to the Op in play are read; this stands in for the six raw argument
// registers the real ABI packs.
type Args struct {
	URI      string
	Buf      []byte
	NonBlock bool

	Stdin, Stdout         res.HandleID
	HasStdin, HasStdout   bool
	MailboxAttach         res.HandleID
	HasMailboxAttach      bool
	Mask                  res.EventMask
	Program               Program
	ProcessArgs           []string
	Env                   map[string]string

	Index  int64
	Offset int64
	Whence int

	Signal res.Signal

	Size   uint64
	NewBrk mem.VirtAddr

	Colour     uint32
	X, Y, W, H int
	SrcStride  int

	// ExitCode is PROCESS_EXIT's argument.
	ExitCode int32

	// BufferHandle names the shared buffer FILE_READ_BUFFER/WRITE_BUFFER
	// move bytes into or out of.
	BufferHandle res.HandleID
}

// Result bundles every operation's possible return values, mirroring the
// signed isize the real ABI returns through rax — except that most of these
// operations need to return more than one integer, so the fields that matter
// for a given Op are populated and the rest left zero.
type Result struct {
	Handle  res.HandleID
	Handle2 res.HandleID // CHANNEL_CREATE_PAIR's second handle

	N int

	Entry    res.DirEntry
	HasEntry bool

	EventHandle res.HandleID
	EventBits   res.EventMask

	PID      uint64
	Exited   bool
	ExitCode int32

	Stat res.Stat
	Info res.SurfaceInfo
	Brk  mem.VirtAddr
}
