package mem

import (
	"testing"
)

func TestFrameAllocatorAllocate(tt *testing.T) {
	tt.Parallel()

	a := NewFrameAllocator()

	f, err := a.Allocate(PageSize)
	if err != nil {
		tt.Fatalf("allocate: %v", err)
	}

	if f.Size() != PageSize {
		tt.Errorf("size: want %d, got %d", PageSize, f.Size())
	}

	if got := a.Live(); got != PageSize {
		tt.Errorf("live: want %d, got %d", PageSize, got)
	}

	f.Release()

	if got := a.Live(); got != 0 {
		tt.Errorf("live after release: want 0, got %d", got)
	}
}

func TestFrameAllocateRoundsUpToPage(tt *testing.T) {
	tt.Parallel()

	a := NewFrameAllocator()

	f, err := a.Allocate(1)
	if err != nil {
		tt.Fatalf("allocate: %v", err)
	}
	defer f.Release()

	if f.Size() != PageSize {
		tt.Errorf("size: want %d, got %d", PageSize, f.Size())
	}
}

func TestFrameAllocateZeroSize(tt *testing.T) {
	tt.Parallel()

	a := NewFrameAllocator()

	if _, err := a.Allocate(0); err == nil {
		tt.Fatal("want error for zero-size allocation")
	}
}

func TestFrameCloneSharesRefCount(tt *testing.T) {
	tt.Parallel()

	a := NewFrameAllocator()

	f, err := a.Allocate(PageSize)
	if err != nil {
		tt.Fatalf("allocate: %v", err)
	}

	clone := f.Clone()

	if f.RefCount() != 2 {
		tt.Fatalf("refcount: want 2, got %d", f.RefCount())
	}

	f.Release()

	if got := a.Live(); got != PageSize {
		tt.Fatalf("live after first release: want %d, got %d", PageSize, got)
	}

	clone.Release()

	if got := a.Live(); got != 0 {
		tt.Fatalf("live after second release: want 0, got %d", got)
	}
}

func TestFrameBytesAreWritable(tt *testing.T) {
	tt.Parallel()

	a := NewFrameAllocator()

	f, err := a.Allocate(PageSize)
	if err != nil {
		tt.Fatalf("allocate: %v", err)
	}
	defer f.Release()

	buf := f.Bytes()
	buf[0] = 0xAB

	if f.Bytes()[0] != 0xAB {
		tt.Errorf("want written byte to persist through the same frame handle")
	}
}
