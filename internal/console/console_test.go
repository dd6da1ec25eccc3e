package console

import (
	"context"
	"os"
	"testing"
)

func TestNewConsoleRejectsNonTTY(tt *testing.T) {
	tt.Parallel()

	r, w, err := os.Pipe()
	if err != nil {
		tt.Fatalf("pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if _, err := NewConsole(context.Background(), r, w); err != ErrNoTTY {
		tt.Fatalf("want ErrNoTTY for a non-terminal fd, got %v", err)
	}
}

func TestConsoleBlockReadDrainsKeyChannel(tt *testing.T) {
	tt.Parallel()

	c := &Console{keyCh: make(chan byte, 8)}
	c.keyCh <- 'h'
	c.keyCh <- 'i'

	block := NewConsoleBlock(c)

	buf := make([]byte, 8)

	n, err := block.Read(buf)
	if err != nil {
		tt.Fatalf("read: %v", err)
	}

	if string(buf[:n]) != "hi" {
		tt.Fatalf("want %q, got %q", "hi", string(buf[:n]))
	}

	n, err = block.Read(buf)
	if err != nil || n != 0 {
		tt.Fatalf("want (0, nil) once drained, got (%d, %v)", n, err)
	}
}

func TestKeyboardSourcePollReturnsKeyEvents(tt *testing.T) {
	tt.Parallel()

	c := &Console{keyCh: make(chan byte, 4)}
	c.keyCh <- 'x'

	src := NewKeyboardSource(c)

	ev, ok := src.Poll()
	if !ok {
		tt.Fatal("want a pending key event")
	}

	if ev.Code != uint16('x') {
		tt.Fatalf("want code %d, got %d", 'x', ev.Code)
	}

	if _, ok := src.Poll(); ok {
		tt.Fatal("want no further events once drained")
	}
}
