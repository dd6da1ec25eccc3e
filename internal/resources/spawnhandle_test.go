package resources

import (
	"errors"
	"testing"

	"github.com/smoynes/panda/internal/ipc"
	"github.com/smoynes/panda/internal/proc"
	"github.com/smoynes/panda/internal/res"
)

func TestSpawnHandleChannelAndProcessCapabilities(tt *testing.T) {
	tt.Parallel()

	a, b := ipc.NewPair(4)
	_ = b

	info := proc.NewProcessInfo(7)
	waker := proc.NewWaker(7)

	h := NewSpawnHandle(a, info, waker)

	if h.PID() != 7 || !h.IsRunning() {
		tt.Fatalf("want pid=7 running, got pid=%d running=%v", h.PID(), h.IsRunning())
	}

	if _, err := h.Send([]byte("hi"), true); err != nil {
		tt.Fatalf("send: %v", err)
	}

	buf := make([]byte, 8)

	n, err := b.Recv(buf, true)
	if err != nil || string(buf[:n]) != "hi" {
		tt.Fatalf("want the child's peer to receive 'hi', got n=%d err=%v", n, err)
	}

	info.SetExitCode(3)

	code, exited := h.ExitCode()
	if !exited || code != 3 {
		tt.Fatalf("want (3, true), got (%d, %v)", code, exited)
	}
}

func TestSpawnHandleSignalStopSendsChannelMessage(tt *testing.T) {
	tt.Parallel()

	a, b := ipc.NewPair(4)

	info := proc.NewProcessInfo(1)
	waker := proc.NewWaker(1)

	h := NewSpawnHandle(a, info, waker)

	if err := h.Signal(res.SignalStop); err != nil {
		tt.Fatalf("signal: %v", err)
	}

	buf := make([]byte, 8)

	n, err := b.Recv(buf, true)
	if err != nil {
		tt.Fatalf("recv: %v", err)
	}

	if string(buf[:n]) != string(stopSignalMessage) {
		tt.Fatalf("want the stop sentinel delivered as a message, got %v", buf[:n])
	}
}

func TestSpawnHandleSignalStopImmediatelyNotSupportedHere(tt *testing.T) {
	tt.Parallel()

	a, _ := ipc.NewPair(4)
	h := NewSpawnHandle(a, proc.NewProcessInfo(1), proc.NewWaker(1))

	if err := h.Signal(res.SignalStopImmediately); !errors.Is(err, res.ErrNotSupported) {
		tt.Fatalf("want ErrNotSupported (handled by the dispatcher instead), got %v", err)
	}
}
