package resources

// spawnhandle.go implements SpawnHandle, the resource spawn() returns to a
// parent process: a channel to the child plus the ability to wait/signal it.
// Grounded directly on panda-kernel/src/resource/spawn_handle.rs's
// SpawnHandle, whose Resource/Process impls combine an as_channel and an
// as_process projection over the same object — the same projector style
// internal/res.Resource uses throughout this module.

import (
	"github.com/smoynes/panda/internal/ipc"
	"github.com/smoynes/panda/internal/proc"
	"github.com/smoynes/panda/internal/res"
)

// SpawnHandle is Channel + ProcessCap over a single child process: the
// channel endpoint whose peer is the child's PARENT handle, and its
// ProcessInfo for wait/signal.
type SpawnHandle struct {
	channel *ipc.Endpoint
	info    *proc.ProcessInfo
	waker   *proc.Waker
}

// NewSpawnHandle combines channel (the parent's end of the pipe to the
// child) with info (the child's process info) into one resource.
func NewSpawnHandle(channel *ipc.Endpoint, info *proc.ProcessInfo, waker *proc.Waker) *SpawnHandle {
	return &SpawnHandle{channel: channel, info: info, waker: waker}
}

func (s *SpawnHandle) Send(buf []byte, nonblock bool) (int, error) {
	return s.channel.Send(buf, nonblock)
}

func (s *SpawnHandle) Recv(buf []byte, nonblock bool) (int, error) {
	return s.channel.Recv(buf, nonblock)
}

func (s *SpawnHandle) SenderWaker() res.Waker   { return s.channel.SenderWaker() }
func (s *SpawnHandle) ReceiverWaker() res.Waker { return s.channel.ReceiverWaker() }

// BindSenderWaker lets the kernel dispatcher register for retry the same way
// it does for any other channel send, since Signal(Stop) is delivered as a
// message on this same channel and can return res.ErrWouldBlock.
func (s *SpawnHandle) BindSenderWaker(fn func()) { s.channel.BindSenderWaker(fn) }

func (s *SpawnHandle) PID() uint64 { return s.info.PID() }

func (s *SpawnHandle) IsRunning() bool { return s.info.IsRunning() }

func (s *SpawnHandle) ExitCode() (int32, bool) { return s.info.ExitCode() }

// Signal delivers sig to the child. StopImmediately is handled by the kernel
// dispatcher directly (it must force-terminate the target's goroutine, which
// SpawnHandle alone cannot do); Stop is delivered as a message on the
// channel, matching spec.md §4.F.
func (s *SpawnHandle) Signal(sig res.Signal) error {
	switch sig {
	case res.SignalStop:
		_, err := s.channel.Send(stopSignalMessage, false)
		return err
	case res.SignalStopImmediately:
		return res.ErrNotSupported // the kernel dispatcher handles this directly
	default:
		return res.ErrNotSupported
	}
}

func (s *SpawnHandle) Waker() res.Waker { return s.waker }

func (s *SpawnHandle) Release() { s.channel.Release() }

// stopSignalMessage is the sentinel payload libpanda's channel protocol
// recognizes as a graceful-stop request, rather than ordinary pipeline data.
var stopSignalMessage = []byte{0xFF, 'S', 'T', 'O', 'P'}

var (
	_ res.ChannelEndpoint = (*SpawnHandle)(nil)
	_ res.ProcessCap      = (*SpawnHandle)(nil)
)
