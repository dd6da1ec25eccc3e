package resources

import (
	"testing"

	"github.com/smoynes/panda/internal/mem"
)

func TestSharedBufferBytesAreWritableAndReleaseFreesFrame(tt *testing.T) {
	tt.Parallel()

	frames := mem.NewFrameAllocator()

	buf, err := NewSharedBuffer(frames, mem.PageSize)
	if err != nil {
		tt.Fatalf("alloc: %v", err)
	}

	b := buf.Bytes()
	if len(b) < int(mem.PageSize) {
		tt.Fatalf("want at least a page, got %d bytes", len(b))
	}

	b[0] = 0xAA
	if buf.Bytes()[0] != 0xAA {
		tt.Fatal("want writes to Bytes() to be visible on subsequent calls")
	}

	buf.Release()

	if frames.Live() != 0 {
		tt.Errorf("want frame released, live=%d", frames.Live())
	}
}
