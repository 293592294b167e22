// Package suspend implements the cooperative wait/wake primitive: a
// per-socket intrusive list of waiting goroutines, a cleanup callback
// registered before the caller's lock is released, and a timeout carried
// on the waiter itself. This mirrors NetX's tx_thread_suspend: register
// cleanup, release the protecting mutex, suspend, and let the waker set
// the completion status — reworked here as a channel-based wait paired
// with a context for cancellation, where the cleanup callback is the
// cancellation handler.
package suspend

import (
	"context"
	"sync"
	"time"

	"github.com/nxgo/netxcore/internal/xerrors"
)

// Waiter is one suspended caller. It is both the wait handle returned to
// Suspend's caller and the intrusive list node threaded onto whatever
// queue it is suspended on (a List).
type Waiter struct {
	done    chan struct{}
	once    sync.Once
	status  error
	cleanup func(status error)

	// next/prev thread this waiter onto an intrusive circular List. A
	// waiter not on any list has next == nil.
	next, prev *Waiter

	// Control is an arbitrary payload the cleanup routine needs, mirroring
	// the host thread system's tx_thread_suspend_control_block (e.g. the
	// socket a UDP bind is contending for).
	Control any
}

// NewWaiter creates an unqueued waiter. cleanup is invoked at most once,
// on timeout or context cancellation, with the lock NOT held — the
// cleanup routine is responsible for acquiring whatever lock it needs.
func NewWaiter(cleanup func(status error)) *Waiter {
	return &Waiter{done: make(chan struct{}), cleanup: cleanup}
}

// Status returns the reason this waiter woke, valid only after Suspend
// returns.
func (w *Waiter) Status() error { return w.status }

// wake publishes status and unblocks any Suspend call on this waiter.
// Safe to call at most meaningfully once; subsequent calls are no-ops.
func (w *Waiter) wake(status error) {
	w.once.Do(func() {
		w.status = status
		close(w.done)
	})
}

// Wake is the waker-side API (e.g. an Unbind or a connection-establishment
// path) to resume a suspended waiter with a nil (success) or non-nil
// status. The caller must publish any state the resumed goroutine will
// read before calling Wake — there is no second lock acquisition inside
// Suspend after wake.
func (w *Waiter) Wake(status error) { w.wake(status) }

// Suspend releases the caller's lock (by invoking unlock) and blocks until
// the waiter is woken, the timeout elapses, or ctx is cancelled. On
// timeout or cancellation it invokes the registered cleanup before
// returning, exactly as the host thread system's timer service invokes a
// suspended thread's cleanup routine.
//
// The caller must have threaded w onto whatever List it is suspended on,
// and must not re-acquire the lock inside unlock's caller after Suspend
// returns — the resuming path already published state before waking.
func Suspend(ctx context.Context, w *Waiter, unlock func(), timeout time.Duration) error {
	unlock()

	if timeout <= 0 {
		select {
		case <-w.done:
			return w.status
		case <-ctx.Done():
			w.runCleanup(xerrors.ErrAborted)
			return w.status
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return w.status
	case <-timer.C:
		w.runCleanup(xerrors.ErrTimeout)
		return w.status
	case <-ctx.Done():
		w.runCleanup(xerrors.ErrAborted)
		return w.status
	}
}

func (w *Waiter) runCleanup(fallback error) {
	if w.cleanup != nil {
		w.cleanup(fallback)
	}
	// The cleanup routine unlinks the waiter under the owning lock; the
	// wake with the timeout/abort status happens here. If a waker already
	// woke the waiter, this wake is a no-op and the waker's status stands.
	w.wake(fallback)
}

// List is a circular doubly-linked queue of waiters, the same intrusive
// suspended-thread list shape NetX threads through its socket control
// blocks: stable nodes with explicit prev/next, never a slice copy.
type List struct {
	head  *Waiter
	count int
}

// Len returns the number of waiters currently queued.
func (l *List) Len() int { return l.count }

// Empty reports whether the list has no waiters.
func (l *List) Empty() bool { return l.head == nil }

// PushBack threads w onto the end of the circular list.
func (l *List) PushBack(w *Waiter) {
	if l.head == nil {
		w.next = w
		w.prev = w
		l.head = w
	} else {
		last := l.head.prev
		w.next = l.head
		w.prev = last
		last.next = w
		l.head.prev = w
	}
	l.count++
}

// Front returns the first waiter in the list, or nil if empty.
func (l *List) Front() *Waiter { return l.head }

// Remove unlinks w from the list. It is a no-op if w is not queued.
func (l *List) Remove(w *Waiter) {
	if w.next == nil {
		return
	}
	if w.next == w {
		l.head = nil
	} else {
		w.prev.next = w.next
		w.next.prev = w.prev
		if l.head == w {
			l.head = w.next
		}
	}
	w.next = nil
	w.prev = nil
	l.count--
}
