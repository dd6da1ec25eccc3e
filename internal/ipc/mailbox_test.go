package ipc

import (
	"errors"
	"testing"

	"github.com/smoynes/panda/internal/res"
)

func TestMailboxDeliversOnlyMaskedBits(tt *testing.T) {
	tt.Parallel()

	mb := NewMailbox(0)

	if err := mb.Attach(1, res.ChannelReadable); err != nil {
		tt.Fatalf("attach: %v", err)
	}

	mb.PostEvent(1, res.ChannelWritable) // not in mask: dropped

	if _, _, err := mb.Wait(true); !errors.Is(err, res.ErrQueueEmpty) {
		tt.Fatalf("want nothing delivered for an unmasked bit, got err=%v", err)
	}

	mb.PostEvent(1, res.ChannelReadable|res.ChannelWritable)

	handle, bits, err := mb.Wait(true)
	if err != nil {
		tt.Fatalf("wait: %v", err)
	}

	if handle != 1 || bits != res.ChannelReadable {
		tt.Fatalf("want only the masked bit delivered, got handle=%d bits=%d", handle, bits)
	}
}

func TestMailboxCoalescesRepeatedEventsForSameHandle(tt *testing.T) {
	tt.Parallel()

	mb := NewMailbox(0)
	mb.Attach(1, res.ChannelReadable|res.ChannelClosed)

	mb.PostEvent(1, res.ChannelReadable)
	mb.PostEvent(1, res.ChannelReadable)
	mb.PostEvent(1, res.ChannelClosed)

	if n := len(mb.pending); n != 1 {
		tt.Fatalf("want exactly one coalesced pending entry, got %d", n)
	}

	handle, bits, err := mb.Wait(true)
	if err != nil {
		tt.Fatalf("wait: %v", err)
	}

	want := res.ChannelReadable | res.ChannelClosed
	if handle != 1 || bits != want {
		tt.Fatalf("want handle=1 bits=%d (OR-merged), got handle=%d bits=%d", want, handle, bits)
	}

	if _, _, err := mb.Wait(true); !errors.Is(err, res.ErrQueueEmpty) {
		tt.Fatal("want mailbox drained after one Wait")
	}
}

func TestMailboxDeliversFIFOAcrossHandles(tt *testing.T) {
	tt.Parallel()

	mb := NewMailbox(0)
	mb.Attach(1, res.ChannelReadable)
	mb.Attach(2, res.ChannelReadable)

	mb.PostEvent(2, res.ChannelReadable)
	mb.PostEvent(1, res.ChannelReadable)

	h1, _, err := mb.Wait(true)
	if err != nil {
		tt.Fatalf("wait: %v", err)
	}

	if h1 != 2 {
		tt.Fatalf("want handle 2 first (posted first), got %d", h1)
	}

	h2, _, err := mb.Wait(true)
	if err != nil {
		tt.Fatalf("wait: %v", err)
	}

	if h2 != 1 {
		tt.Fatalf("want handle 1 second, got %d", h2)
	}
}

func TestMailboxBoundedCapacityDropsNewHandlesSilently(tt *testing.T) {
	tt.Parallel()

	mb := NewMailbox(2)

	for h := res.HandleID(1); h <= 3; h++ {
		mb.Attach(h, res.ChannelReadable)
	}

	mb.PostEvent(1, res.ChannelReadable)
	mb.PostEvent(2, res.ChannelReadable)
	mb.PostEvent(3, res.ChannelReadable) // over capacity: dropped

	if n := len(mb.pending); n != 2 {
		tt.Fatalf("want steady-state pending capped at 2, got %d", n)
	}

	seen := map[res.HandleID]bool{}
	for {
		h, _, err := mb.Wait(true)
		if err != nil {
			break
		}

		seen[h] = true
	}

	if seen[3] {
		tt.Error("want handle 3's event dropped once mailbox was at capacity")
	}
}

func TestMailboxWaitNonblockReportsQueueEmpty(tt *testing.T) {
	tt.Parallel()

	mb := NewMailbox(0)

	if _, _, err := mb.Wait(true); !errors.Is(err, res.ErrQueueEmpty) {
		tt.Fatalf("want ErrQueueEmpty, got %v", err)
	}
}

func TestMailboxWaitBlockingReturnsWouldBlock(tt *testing.T) {
	tt.Parallel()

	mb := NewMailbox(0)

	if _, _, err := mb.Wait(false); !errors.Is(err, res.ErrWouldBlock) {
		tt.Fatalf("want ErrWouldBlock, got %v", err)
	}
}

func TestMailboxDetachDropsPendingEntry(tt *testing.T) {
	tt.Parallel()

	mb := NewMailbox(0)
	mb.Attach(1, res.ChannelReadable)
	mb.PostEvent(1, res.ChannelReadable)

	mb.Detach(1)

	if _, _, err := mb.Wait(true); !errors.Is(err, res.ErrQueueEmpty) {
		tt.Fatal("want detaching a handle to discard its pending entry")
	}
}
