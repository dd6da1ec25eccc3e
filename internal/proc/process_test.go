package proc

import (
	"testing"

	"github.com/smoynes/panda/internal/mem"
	"github.com/smoynes/panda/internal/res"
)

type fakeResource struct{ released bool }

func (f *fakeResource) Release() { f.released = true }

func TestProcessExitClosesHandlesAndSpace(tt *testing.T) {
	tt.Parallel()

	frames := mem.NewFrameAllocator()
	p := New(frames, 0)

	r := &fakeResource{}

	if _, err := p.Handles.Insert(r); err != nil {
		tt.Fatalf("insert: %v", err)
	}

	if _, err := p.Heap.SetBrk(mem.HeapBase + mem.PageSize); err != nil {
		tt.Fatalf("setbrk: %v", err)
	}

	p.Exit(0)

	if !r.released {
		tt.Error("want handle table resources released on exit")
	}

	if code, exited := p.Info.ExitCode(); !exited || code != 0 {
		tt.Errorf("exit code: want (0, true), got (%d, %v)", code, exited)
	}

	if frames.Live() != 0 {
		tt.Errorf("want every frame released on exit, live=%d", frames.Live())
	}
}

func TestProcessExitIsSetOnce(tt *testing.T) {
	tt.Parallel()

	frames := mem.NewFrameAllocator()
	p := New(frames, 0)

	p.Exit(7)
	p.Exit(9)

	code, exited := p.Info.ExitCode()
	if !exited || code != 7 {
		tt.Errorf("want first exit code to stick: got (%d, %v)", code, exited)
	}
}

func TestNewPIDIsUnique(tt *testing.T) {
	tt.Parallel()

	seen := map[uint64]bool{}

	for i := 0; i < 100; i++ {
		pid := NewPID()
		if seen[pid] {
			tt.Fatalf("duplicate pid %d", pid)
		}

		seen[pid] = true
	}
}

var _ res.Resource = (*fakeResource)(nil)
