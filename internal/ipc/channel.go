// Package ipc implements bounded channels and mailboxes (spec §4.F): the
// concrete res.ChannelEndpoint and res.Mailbox resources kernel syscall
// handlers operate on.
package ipc

// channel.go implements res.ChannelEndpoint as a pair of directly linked,
// fixed capacity message queues. Grounded on
// panda-kernel/src/syscall/channel.rs's handle_send/handle_recv, whose
// blocking loop (send/recv, on QueueFull/empty register a waker and let the
// syscall restart) is reproduced here as Send/Recv returning res.ErrWouldBlock
// for the kernel's syscall dispatcher to turn into a block-and-restart, rather
// than blocking internally — internal/sched owns the only blocking point, so
// resources themselves are never allowed to park a goroutine.

import (
	"sync"

	"github.com/cloudwego/gopkg/container/ring"

	"github.com/smoynes/panda/internal/mem"
	"github.com/smoynes/panda/internal/res"
)

// MaxMessageSize bounds a single channel message, matching spec.md §4.F.
const MaxMessageSize = 64 * 1024

// DefaultChannelCapacity is the queue depth of a freshly created endpoint
// (spec.md §4.F names 16 as an example capacity).
const DefaultChannelCapacity = 16

// channelQueue is a fixed-capacity FIFO of message buffers, backed by
// cloudwego/gopkg's GC-friendly Ring so the buffer itself is allocated once at
// creation rather than growing incrementally.
type channelQueue struct {
	buf   *ring.Ring[[]byte]
	head  int
	count int
}

func newChannelQueue(capacity int) *channelQueue {
	return &channelQueue{buf: ring.NewFromSlice(make([][]byte, capacity))}
}

func (q *channelQueue) cap() int { return q.buf.Len() }

func (q *channelQueue) full() bool { return q.count == q.buf.Len() }

func (q *channelQueue) empty() bool { return q.count == 0 }

func (q *channelQueue) push(msg []byte) bool {
	if q.full() {
		return false
	}

	idx := (q.head + q.count) % q.buf.Len()

	item, _ := q.buf.Get(idx)
	*item.Pointer() = msg
	q.count++

	return true
}

func (q *channelQueue) pop() ([]byte, bool) {
	if q.empty() {
		return nil, false
	}

	item, _ := q.buf.Get(q.head)
	msg := item.Value()
	*item.Pointer() = nil

	q.head = (q.head + 1) % q.buf.Len()
	q.count--

	return msg, true
}

// peek returns the queue head without removing it.
func (q *channelQueue) peek() ([]byte, bool) {
	if q.empty() {
		return nil, false
	}

	item, _ := q.buf.Get(q.head)

	return item.Value(), true
}

// Endpoint is one half of a bidirectional channel. The two endpoints of a
// pair hold pointers to each other directly (not weak references: Go's
// garbage collector, unlike Rust's Arc/Weak, already reclaims a cycle once
// both sides are unreachable, so there is no leak to guard against by
// weakening the link).
type Endpoint struct {
	mu     sync.Mutex
	recvQ  *channelQueue
	closed bool

	peer *Endpoint // nil once peer has been released

	senderWaker   *endpointWaker
	receiverWaker *endpointWaker

	mailbox    res.Mailbox
	mailboxID  res.HandleID
	hasMailbox bool
}

// endpointWaker adapts a proc.Waker-shaped callback into res.Waker without
// internal/ipc importing internal/proc, keeping ipc's dependency on sched and
// proc limited to the interfaces res already declares.
type endpointWaker struct {
	mu   sync.Mutex
	wake func()
}

func (w *endpointWaker) Wake() {
	w.mu.Lock()
	fn := w.wake
	w.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (w *endpointWaker) bind(fn func()) {
	w.mu.Lock()
	w.wake = fn
	w.mu.Unlock()
}

// NewPair creates two endpoints whose sends land in each other's receive
// queue, per spec.md §4.F's create_pair.
func NewPair(capacity int) (a, b *Endpoint) {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}

	a = &Endpoint{
		recvQ:         newChannelQueue(capacity),
		senderWaker:   &endpointWaker{},
		receiverWaker: &endpointWaker{},
	}
	b = &Endpoint{
		recvQ:         newChannelQueue(capacity),
		senderWaker:   &endpointWaker{},
		receiverWaker: &endpointWaker{},
	}

	a.peer, b.peer = b, a

	return a, b
}

// AttachMailbox arranges for events on this endpoint to be posted to mb under
// id, matching whatever mask the process later attaches via Mailbox.Attach.
func (e *Endpoint) AttachMailbox(mb res.Mailbox, id res.HandleID) {
	e.mu.Lock()
	e.mailbox = mb
	e.mailboxID = id
	e.hasMailbox = true
	e.mu.Unlock()
}

func (e *Endpoint) postEvent(bits res.EventMask) {
	e.mu.Lock()
	mb, id, ok := e.mailbox, e.mailboxID, e.hasMailbox
	e.mu.Unlock()

	if ok {
		mb.PostEvent(id, bits)
	}
}

// Send enqueues buf on the peer's receive queue. A non-blocking caller gets
// res.ErrQueueFull immediately on a full queue; a blocking caller gets
// res.ErrWouldBlock, the signal internal/kernel uses to register on
// SenderWaker and restart the syscall.
func (e *Endpoint) Send(buf []byte, nonblock bool) (int, error) {
	if len(buf) > MaxMessageSize {
		return 0, res.ErrMessageTooLarge
	}

	e.mu.Lock()
	peer := e.peer
	e.mu.Unlock()

	if peer == nil {
		return 0, res.ErrPeerClosed
	}

	peer.mu.Lock()

	if peer.closed {
		peer.mu.Unlock()
		return 0, res.ErrPeerClosed
	}

	if peer.recvQ.full() {
		peer.mu.Unlock()

		if nonblock {
			return 0, res.ErrQueueFull
		}

		return 0, res.ErrWouldBlock
	}

	msg := mem.NewScratchBuffer(len(buf))
	copy(msg, buf)
	peer.recvQ.push(msg)
	peer.mu.Unlock()

	peer.receiverWaker.Wake()
	peer.postEvent(res.ChannelReadable)

	return len(buf), nil
}

// Recv dequeues the next message into buf. A non-blocking caller gets
// res.ErrQueueEmpty immediately on an empty queue; a blocking caller gets
// res.ErrWouldBlock. The message is only popped once it is known to fit in
// buf, so a BufferTooSmall caller can retry with a bigger buffer without
// having lost it.
func (e *Endpoint) Recv(buf []byte, nonblock bool) (int, error) {
	e.mu.Lock()

	msg, ok := e.recvQ.peek()
	if !ok {
		peerGone := e.peer == nil
		e.mu.Unlock()

		if peerGone {
			return 0, res.ErrPeerClosed
		}

		if nonblock {
			return 0, res.ErrQueueEmpty
		}

		return 0, res.ErrWouldBlock
	}

	if len(msg) > len(buf) {
		e.mu.Unlock()
		return 0, res.ErrBufferTooSmall
	}

	e.recvQ.pop()
	e.mu.Unlock()

	n := copy(buf, msg)
	mem.FreeScratchBuffer(msg)

	e.senderWaker.Wake()

	return n, nil
}

// SenderWaker returns the token a blocked sender (queue was full) waits on.
func (e *Endpoint) SenderWaker() res.Waker { return e.senderWaker }

// ReceiverWaker returns the token a blocked receiver (queue was empty) waits
// on.
func (e *Endpoint) ReceiverWaker() res.Waker { return e.receiverWaker }

// BindSenderWaker connects this endpoint's sender waker to a scheduler
// callback (typically proc.Waker.Wake).
func (e *Endpoint) BindSenderWaker(fn func()) { e.senderWaker.bind(fn) }

// BindReceiverWaker connects this endpoint's receiver waker to a scheduler
// callback.
func (e *Endpoint) BindReceiverWaker(fn func()) { e.receiverWaker.bind(fn) }

// Release closes this endpoint: the peer's queued messages remain readable
// (recv drains them before observing PeerClosed), but the peer's next send
// fails and its waker fires with CHANNEL_CLOSED posted once.
func (e *Endpoint) Release() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	e.closed = true
	peer := e.peer
	e.peer = nil
	e.mu.Unlock()

	if peer != nil {
		peer.mu.Lock()
		peer.peer = nil
		peer.mu.Unlock()

		peer.receiverWaker.Wake()
		peer.senderWaker.Wake()
		peer.postEvent(res.ChannelClosed)
	}
}

var (
	_ res.ChannelEndpoint = (*Endpoint)(nil)
	_ res.Resource        = (*Endpoint)(nil)
)
