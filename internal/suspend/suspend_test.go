package suspend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nxgo/netxcore/internal/xerrors"
)

func TestSuspendWake(t *testing.T) {
	var unlocked bool
	w := NewWaiter(func(status error) { t.Fatal("cleanup should not run on a successful wake") })

	go func() {
		time.Sleep(5 * time.Millisecond)
		w.Wake(nil)
	}()

	err := Suspend(context.Background(), w, func() { unlocked = true }, time.Second)
	if err != nil {
		t.Fatalf("Suspend = %v, want nil", err)
	}
	if !unlocked {
		t.Error("unlock callback was not invoked")
	}
}

func TestSuspendTimeout(t *testing.T) {
	var cleaned bool
	w := NewWaiter(func(status error) {
		cleaned = true
		if status != xerrors.ErrTimeout {
			t.Errorf("cleanup status = %v, want ErrTimeout", status)
		}
	})

	err := Suspend(context.Background(), w, func() {}, 10*time.Millisecond)
	if err != xerrors.ErrTimeout {
		t.Fatalf("Suspend = %v, want ErrTimeout", err)
	}
	if !cleaned {
		t.Error("cleanup did not run on timeout")
	}
}

func TestSuspendContextCancel(t *testing.T) {
	w := NewWaiter(func(status error) {})
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := Suspend(ctx, w, func() {}, time.Second)
	if err != xerrors.ErrAborted {
		t.Fatalf("Suspend = %v, want ErrAborted", err)
	}
}

func TestSuspendWakeBeforeTimeout(t *testing.T) {
	w := NewWaiter(func(status error) { t.Fatal("cleanup should not run when woken before deadline") })
	w.Wake(errors.New("custom status"))

	err := Suspend(context.Background(), w, func() {}, time.Second)
	if err == nil || err.Error() != "custom status" {
		t.Fatalf("Suspend = %v, want custom status", err)
	}
}

func TestListPushBackRemove(t *testing.T) {
	var l List
	a := NewWaiter(nil)
	b := NewWaiter(nil)
	c := NewWaiter(nil)

	l.PushBack(a)
	l.PushBack(b)
	l.PushBack(c)

	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}
	if l.Front() != a {
		t.Fatalf("Front() = %v, want a", l.Front())
	}

	l.Remove(b)
	if l.Len() != 2 {
		t.Errorf("Len() after Remove = %d, want 2", l.Len())
	}
	if a.next != c || c.prev != a {
		t.Errorf("list not correctly spliced after removing middle element")
	}

	l.Remove(a)
	l.Remove(c)
	if !l.Empty() {
		t.Errorf("Empty() = false after removing all waiters")
	}
}

func TestListRemoveNotQueued(t *testing.T) {
	var l List
	w := NewWaiter(nil)
	l.Remove(w) // must not panic
	if l.Len() != 0 {
		t.Errorf("Len() = %d after removing unqueued waiter, want 0", l.Len())
	}
}
