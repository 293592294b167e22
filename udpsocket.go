package netx

import (
	"context"
	"math/rand"
	"time"

	"github.com/nxgo/netxcore/internal/pbuf"
	"github.com/nxgo/netxcore/internal/suspend"
)

// AnyPort requests an ephemeral port allocation from Bind.
const AnyPort uint16 = 0

const (
	ephemeralPortStart = 49152
	ephemeralPortEnd   = 65535
)

// udpBindQueue is the suspension queue threaded onto whichever socket
// currently owns a contended port. It is referenced by pointer (not
// copied) from both sides of a suspension so that transferring ownership
// of a port on Unbind also transfers any waiters still behind the one
// that was just woken, without invalidating an in-flight cleanup
// closure's view of the queue.
type udpBindQueue struct {
	list suspend.List
}

// bindWaiterCtx is the suspend.Waiter.Control payload for a UDP bind
// suspension: which queue the waiter sits on, and which socket is trying
// to acquire the port.
type bindWaiterCtx struct {
	queue  *udpBindQueue
	binder *UDPSocket
}

// UDPSocket is a bindable UDP endpoint threaded onto a Stack's port hash
// table. The zero value is not usable; create one with NewUDPSocket.
type UDPSocket struct {
	stack *Stack

	port uint16

	boundNext, boundPrev *UDPSocket
	bindInProgress       *suspend.Waiter
	bindQueue            *udpBindQueue

	recvHead, recvTail *pbuf.Buffer
	recvCount          int
}

// NewUDPSocket creates an unbound UDP socket owned by s.
func NewUDPSocket(s *Stack) *UDPSocket {
	return &UDPSocket{stack: s}
}

// Port returns the socket's bound port, or 0 if unbound.
func (u *UDPSocket) Port() uint16 {
	u.stack.mu.Lock()
	defer u.stack.mu.Unlock()
	return u.port
}

// IsBound reports whether the socket currently occupies a bucket slot.
func (u *UDPSocket) IsBound() bool {
	u.stack.mu.Lock()
	defer u.stack.mu.Unlock()
	return u.boundNext != nil
}

func hashPort(port uint16, mask uint32) uint32 {
	p := uint32(port)
	return (p + (p >> 8)) & mask
}

// Bind implements the UDP bind operation, mirroring nx_udp_socket_bind: it
// claims port (or an ephemeral one, if port == AnyPort), or — if another
// socket already holds it and wait > 0 — suspends the caller on that socket's
// bind-suspension list until the port frees or ctx/wait expires.
func (u *UDPSocket) Bind(ctx context.Context, port uint16, wait time.Duration) error {
	s := u.stack
	s.mu.Lock()

	if u.boundNext != nil || u.bindInProgress != nil {
		s.mu.Unlock()
		return ErrAlreadyBound
	}

	if port == AnyPort {
		p, err := s.freePortFindLocked()
		if err != nil {
			s.mu.Unlock()
			return err
		}
		port = p
	}

	u.port = port
	index := hashPort(port, s.udpMask)
	head := s.udpBuckets[index]

	var match *UDPSocket
	if head != nil {
		cur := head
		for {
			if cur.port == port {
				match = cur
				break
			}
			cur = cur.boundNext
			if cur == head {
				break
			}
		}
	}

	if match == nil {
		spliceUDP(s, index, u)
		s.mu.Unlock()
		return nil
	}

	if wait <= 0 {
		u.port = 0
		s.mu.Unlock()
		return ErrPortUnavailable
	}

	if match.bindQueue == nil {
		match.bindQueue = &udpBindQueue{}
	}
	queue := match.bindQueue
	bctx := &bindWaiterCtx{queue: queue, binder: u}

	var waiter *suspend.Waiter
	waiter = suspend.NewWaiter(func(status error) {
		s.mu.Lock()
		queue.list.Remove(waiter)
		if u.bindInProgress == waiter {
			u.bindInProgress = nil
			u.port = 0
		}
		s.mu.Unlock()
	})
	waiter.Control = bctx
	queue.list.PushBack(waiter)
	u.bindInProgress = waiter

	return suspend.Suspend(ctx, waiter, s.mu.Unlock, wait)
}

// spliceUDP threads sock onto bucket index's circular list, creating a
// self-loop if the bucket was empty. Caller must hold s.mu.
func spliceUDP(s *Stack, index uint32, sock *UDPSocket) {
	head := s.udpBuckets[index]
	if head == nil {
		sock.boundNext = sock
		sock.boundPrev = sock
		s.udpBuckets[index] = sock
		return
	}
	last := head.boundPrev
	sock.boundNext = head
	sock.boundPrev = last
	last.boundNext = sock
	head.boundPrev = sock
}

// Unbind releases the socket's port. If another thread is suspended
// waiting for this exact port, the longest-waiting one is handed the port
// and woken; otherwise the port is simply freed.
func (u *UDPSocket) Unbind() error {
	s := u.stack
	s.mu.Lock()

	if u.boundNext == nil {
		s.mu.Unlock()
		return ErrNotBound
	}

	index := hashPort(u.port, s.udpMask)
	if u.boundNext == u {
		s.udpBuckets[index] = nil
	} else {
		u.boundPrev.boundNext = u.boundNext
		u.boundNext.boundPrev = u.boundPrev
		if s.udpBuckets[index] == u {
			s.udpBuckets[index] = u.boundNext
		}
	}

	var woken *suspend.Waiter
	if u.bindQueue != nil && !u.bindQueue.list.Empty() {
		queue := u.bindQueue
		woken = queue.list.Front()
		queue.list.Remove(woken)

		ctx := woken.Control.(*bindWaiterCtx)
		binder := ctx.binder

		binder.bindInProgress = nil
		binder.port = u.port
		spliceUDP(s, index, binder)

		if !queue.list.Empty() {
			binder.bindQueue = queue
		}
		u.bindQueue = nil
	}

	u.port = 0
	u.boundNext = nil
	u.boundPrev = nil

	s.mu.Unlock()

	if woken != nil {
		woken.Wake(nil)
	}
	return nil
}

func (s *Stack) portInUseLocked(port uint16) bool {
	index := hashPort(port, s.udpMask)
	head := s.udpBuckets[index]
	if head == nil {
		return false
	}
	cur := head
	for {
		if cur.port == port {
			return true
		}
		cur = cur.boundNext
		if cur == head {
			return false
		}
	}
}

func (s *Stack) freePortFindLocked() (uint16, error) {
	const span = ephemeralPortEnd - ephemeralPortStart + 1
	start := ephemeralPortStart + rand.Intn(span)

	for i := 0; i < span; i++ {
		port := ephemeralPortStart + (start-ephemeralPortStart+i)%span
		if !s.portInUseLocked(uint16(port)) {
			return uint16(port), nil
		}
	}
	return 0, ErrNoFreePorts
}
