// Package pbuf implements the packet-buffer pool: fixed-size chunks drawn
// from a bounded free list, each carrying a movable prepend cursor, the
// way NetX's NX_PACKET pool reserves headroom for headers prepended layer
// by layer on the way out. A Buffer is a small view (head, tail offsets)
// over a pooled backing array, not a pair of raw pointers.
package pbuf

import (
	"context"
	"time"

	"github.com/nxgo/netxcore/internal/addr"
	"github.com/nxgo/netxcore/internal/iface"
	"github.com/nxgo/netxcore/internal/xerrors"
)

// Buffer is one pool chunk currently owned by a caller, a transmit queue,
// or a socket receive queue — never more than one of those at a time.
type Buffer struct {
	pool *Pool
	data []byte
	head int
	tail int

	// Iface is the interface this buffer is bound to for transmission or
	// was received on.
	Iface *iface.Interface
	// NextHop is the address the buffer should be handed to at the link
	// layer, distinct from the final destination for gatewayed routes.
	NextHop addr.Addr
}

// Prepend reserves n bytes immediately before the current head, moving the
// head cursor back by n. The tail is untouched, so Length grows by exactly
// n. Callers write their header into Bytes()[:n] afterward.
func (b *Buffer) Prepend(n int) error {
	if b.head-n < 0 {
		return xerrors.ErrNoMem
	}
	b.head -= n
	return nil
}

// SetLength sets the buffer's content length by moving the tail to
// head+n. Use this when the absolute length is already known (e.g. after
// copying a payload), not in combination with Prepend for the same header
// — Prepend already extends the length on its own.
func (b *Buffer) SetLength(n int) error {
	if b.head+n > cap(b.data) {
		return xerrors.ErrNoMem
	}
	b.tail = b.head + n
	return nil
}

// Length returns the current content length (tail - head).
func (b *Buffer) Length() int { return b.tail - b.head }

// Bytes returns the writable/readable content region [head, tail).
func (b *Buffer) Bytes() []byte { return b.data[b.head:b.tail] }

// Release returns the buffer to its owning pool. A buffer must be either
// released or handed to a transmit/receive queue exactly once; using it
// afterward is a bug.
func (b *Buffer) Release() {
	b.pool.release(b)
}

// Pool is a fixed-capacity set of pre-allocated chunks. Allocation never
// grows the pool: a pool under contention returns ErrNoMem (wait==0) or
// blocks up to wait (wait>0), mirroring a bounded embedded heap rather
// than an unbounded sync.Pool.
type Pool struct {
	chunkSize int
	free      chan *Buffer
}

// NewPool preallocates count chunks of chunkSize bytes each.
func NewPool(count, chunkSize int) *Pool {
	p := &Pool{
		chunkSize: chunkSize,
		free:      make(chan *Buffer, count),
	}
	for i := 0; i < count; i++ {
		buf := &Buffer{pool: p, data: make([]byte, chunkSize)}
		p.free <- buf
	}
	return p
}

// Allocate draws a buffer from the free list, resetting its cursors so
// that sizeHint bytes of headroom lie before head for subsequent Prepend
// calls, with zero content length.
//
// wait == 0 never blocks: the pool is either available or ErrNoMem is
// returned immediately. wait > 0 blocks up to that duration, or until ctx
// is done, whichever comes first.
func (p *Pool) Allocate(ctx context.Context, sizeHint int, wait time.Duration) (*Buffer, error) {
	if sizeHint > p.chunkSize {
		return nil, xerrors.ErrNoMem
	}

	if wait <= 0 {
		select {
		case buf := <-p.free:
			return p.prepare(buf, sizeHint), nil
		default:
			return nil, xerrors.ErrNoMem
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case buf := <-p.free:
		return p.prepare(buf, sizeHint), nil
	case <-timer.C:
		return nil, xerrors.ErrNoMem
	case <-ctx.Done():
		return nil, xerrors.ErrAborted
	}
}

func (p *Pool) prepare(buf *Buffer, sizeHint int) *Buffer {
	buf.head = sizeHint
	buf.tail = buf.head
	buf.Iface = nil
	buf.NextHop = 0
	return buf
}

func (p *Pool) release(buf *Buffer) {
	buf.head = 0
	buf.tail = 0
	buf.Iface = nil
	buf.NextHop = 0
	p.free <- buf
}
