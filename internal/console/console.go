// Package console adapts the real host terminal to the kernel's `console:`
// and `keyboard:` resource schemes (spec §4.B, §9). Grounded on
// internal/tty/tty.go's Console: raw-mode terminal I/O via golang.org/x/term
// and golang.org/x/sys/unix, with a background goroutine copying terminal
// input into a buffered channel. The teacher adapts a host terminal to a
// simulated LC-3 keyboard/display device pair; this adapts the same terminal
// to the kernel's ConsoleBlock/KeyboardSource resource capabilities instead.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/smoynes/panda/internal/res"
)

// ErrNoTTY is returned when standard input is not a terminal, matching
// internal/tty's own sentinel.
var ErrNoTTY = errors.New("console: not a TTY")

// Console owns the raw-mode terminal and fans keypresses out to any attached
// KeyboardSource, while ConsoleBlock reads/writes against it directly.
type Console struct {
	in    *os.File
	out   *os.File
	fd    int
	state *term.State

	keyCh chan byte
}

// NewConsole puts sin into raw mode and starts copying its bytes into an
// internal channel. Callers must call Restore to return the terminal to its
// original state.
func NewConsole(ctx context.Context, sin, sout *os.File) (*Console, error) {
	fd := int(sin.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTTY, err)
	}

	c := &Console{
		fd:    fd,
		in:    sin,
		out:   sout,
		state: saved,
		keyCh: make(chan byte, 256),
	}

	_ = syscall.SetNonblock(fd, false)

	go c.readLoop(ctx)

	return c, nil
}

// Restore returns the terminal to its pre-raw-mode state.
func (c *Console) Restore() {
	_ = term.Restore(c.fd, c.state)
}

func (c *Console) readLoop(ctx context.Context) {
	buf := bufio.NewReader(c.in)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b, err := buf.ReadByte()
		if err != nil {
			return
		}

		select {
		case c.keyCh <- b:
		default:
			// Keyboard buffer saturated: drop the oldest pending byte rather
			// than stall the reader goroutine.
			select {
			case <-c.keyCh:
			default:
			}

			select {
			case c.keyCh <- b:
			default:
			}
		}
	}
}

// ConsoleBlock exposes the console as a Block resource: writes go straight to
// the terminal, reads drain the keypress channel as raw bytes.
type ConsoleBlock struct {
	c *Console
}

// NewConsoleBlock wraps c as a Block resource.
func NewConsoleBlock(c *Console) *ConsoleBlock { return &ConsoleBlock{c: c} }

func (b *ConsoleBlock) Read(buf []byte) (int, error) {
	n := 0

	for n < len(buf) {
		select {
		case k := <-b.c.keyCh:
			buf[n] = k
			n++
		default:
			return n, nil
		}
	}

	return n, nil
}

func (b *ConsoleBlock) Write(buf []byte) (int, error) {
	return b.c.out.Write(buf)
}

func (b *ConsoleBlock) Seek(offset int64, whence int) (int64, error) {
	return 0, res.ErrNotSupported
}

func (b *ConsoleBlock) Stat() (res.Stat, error) {
	return res.Stat{}, nil
}

func (b *ConsoleBlock) Release() {}

var _ res.Block = (*ConsoleBlock)(nil)

// KeyboardSource exposes the console's keypresses as an EventSource.
type KeyboardSource struct {
	c *Console

	mu    sync.Mutex
	waker *sourceWaker
}

// NewKeyboardSource wraps c as an EventSource resource.
func NewKeyboardSource(c *Console) *KeyboardSource {
	return &KeyboardSource{c: c, waker: &sourceWaker{}}
}

func (k *KeyboardSource) Poll() (res.Event, bool) {
	select {
	case b := <-k.c.keyCh:
		return res.Event{Kind: res.EventKey, Code: uint16(b), Value: res.KeyPress}, true
	default:
		return res.Event{}, false
	}
}

func (k *KeyboardSource) Waker() res.Waker { return k.waker }

// BindWaker connects this source's waker to a scheduler callback.
func (k *KeyboardSource) BindWaker(fn func()) { k.waker.bind(fn) }

func (k *KeyboardSource) Release() {}

var _ res.EventSource = (*KeyboardSource)(nil)

type sourceWaker struct {
	mu   sync.Mutex
	wake func()
}

func (w *sourceWaker) Wake() {
	w.mu.Lock()
	fn := w.wake
	w.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (w *sourceWaker) bind(fn func()) {
	w.mu.Lock()
	w.wake = fn
	w.mu.Unlock()
}
