package kernel

// capabilities.go implements the two trivial resources every process's
// handle table reserves a slot for but which no other package models: the
// process's view of itself (HandleSelf) and the ENVIRONMENT namespace
// (HandleEnvironment) that ENVIRONMENT_OPEN/SPAWN/OPENDIR dispatch against.
// Neither has an equivalent file in panda-kernel's resource/ directory since
// the original models both directly in its syscall handlers; here they are
// given a shape so the handle table's reserved ids are never empty.

import (
	"github.com/smoynes/panda/internal/proc"
	"github.com/smoynes/panda/internal/res"
)

// selfCap is the ProcessCap a process's own HandleSelf slot holds: the same
// capability a parent's SpawnHandle exposes over a child, minus the channel
// half, since a process has no channel to itself.
type selfCap struct {
	info  *proc.ProcessInfo
	waker *proc.Waker
}

func newSelfCap(info *proc.ProcessInfo, waker *proc.Waker) *selfCap {
	return &selfCap{info: info, waker: waker}
}

func (s *selfCap) PID() uint64                 { return s.info.PID() }
func (s *selfCap) IsRunning() bool             { return s.info.IsRunning() }
func (s *selfCap) ExitCode() (int32, bool)     { return s.info.ExitCode() }
func (s *selfCap) Waker() res.Waker            { return s.waker }
func (s *selfCap) Release()                    {}

// Signal against one's own HandleSelf is not a supported path: self-exit goes
// through PROCESS_EXIT, and nothing can force-terminate the process running
// this very call.
func (s *selfCap) Signal(sig res.Signal) error { return res.ErrNotSupported }

var _ res.ProcessCap = (*selfCap)(nil)

// environmentMarker is the resource installed at HandleEnvironment. It
// carries no state: ENVIRONMENT_OPEN/SPAWN/OPENDIR are dispatched by the
// kernel directly once it observes the target handle is HandleEnvironment,
// never through a method call on this value.
type environmentMarker struct{}

func (environmentMarker) Release() {}

var _ res.Resource = environmentMarker{}
