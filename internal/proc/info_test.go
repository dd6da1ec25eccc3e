package proc

import "testing"

func TestProcessInfoSetExitCodeWakesObservers(tt *testing.T) {
	tt.Parallel()

	info := NewProcessInfo(1)

	w1 := NewWaker(2)
	w2 := NewWaker(3)

	info.AddWaker(w1)
	info.AddWaker(w2)

	if w1.Signaled() || w2.Signaled() {
		tt.Fatal("want wakers unsignaled before exit")
	}

	info.SetExitCode(5)

	if !w1.Signaled() || !w2.Signaled() {
		tt.Fatal("want every observer woken on exit")
	}

	code, exited := info.ExitCode()
	if !exited || code != 5 {
		tt.Errorf("want (5, true), got (%d, %v)", code, exited)
	}
}

func TestProcessInfoAddWakerAfterExitFiresImmediately(tt *testing.T) {
	tt.Parallel()

	info := NewProcessInfo(1)
	info.SetExitCode(0)

	w := NewWaker(2)
	info.AddWaker(w)

	if !w.Signaled() {
		tt.Fatal("want waker added after exit to fire immediately")
	}
}

func TestWakerBindNotifiesScheduler(tt *testing.T) {
	tt.Parallel()

	var woken uint64

	w := NewWaker(42)
	w.Bind(func(pid uint64) { woken = pid })

	w.Wake()

	if woken != 42 {
		tt.Errorf("want scheduler notified with pid 42, got %d", woken)
	}

	if !w.Signaled() {
		tt.Error("want waker signaled")
	}

	w.Clear()

	if w.Signaled() {
		tt.Error("want waker cleared")
	}
}
