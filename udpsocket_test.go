package netx

import (
	"context"
	"testing"
	"time"
)

func TestUDPBindUnbindRoundTrip(t *testing.T) {
	s := newTestStack(t, &recordingTransmitter{})
	sock := NewUDPSocket(s)

	if err := sock.Bind(context.Background(), 5000, 0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if sock.Port() != 5000 {
		t.Fatalf("Port() = %d, want 5000", sock.Port())
	}
	if !sock.IsBound() {
		t.Fatalf("IsBound() = false after Bind")
	}

	if err := sock.Unbind(); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if sock.IsBound() {
		t.Errorf("IsBound() = true after Unbind")
	}
	if sock.Port() != 0 {
		t.Errorf("Port() = %d after Unbind, want 0", sock.Port())
	}

	index := hashPort(5000, s.udpMask)
	if s.udpBuckets[index] != nil {
		t.Errorf("bucket %d not empty after unbind, got %v", index, s.udpBuckets[index])
	}
}

func TestUDPBindAlreadyBound(t *testing.T) {
	s := newTestStack(t, &recordingTransmitter{})
	sock := NewUDPSocket(s)

	if err := sock.Bind(context.Background(), 5000, 0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := sock.Bind(context.Background(), 5001, 0); err != ErrAlreadyBound {
		t.Errorf("second Bind = %v, want ErrAlreadyBound", err)
	}
}

func TestUDPBindAnyPort(t *testing.T) {
	s := newTestStack(t, &recordingTransmitter{})
	sock := NewUDPSocket(s)

	if err := sock.Bind(context.Background(), AnyPort, 0); err != nil {
		t.Fatalf("Bind(AnyPort): %v", err)
	}
	if sock.Port() == 0 {
		t.Errorf("Port() = 0 after ephemeral bind")
	}
	if sock.Port() < ephemeralPortStart || sock.Port() > ephemeralPortEnd {
		t.Errorf("Port() = %d outside ephemeral range", sock.Port())
	}
}

// TestUDPBindCollisionNoWait covers a bind collision with wait == 0:
// it returns ErrPortUnavailable and leaves B unbound, A's bucket
// unchanged.
func TestUDPBindCollisionNoWait(t *testing.T) {
	s := newTestStack(t, &recordingTransmitter{})
	a := NewUDPSocket(s)
	b := NewUDPSocket(s)

	if err := a.Bind(context.Background(), 5000, 0); err != nil {
		t.Fatalf("A Bind: %v", err)
	}

	err := b.Bind(context.Background(), 5000, 0)
	if err != ErrPortUnavailable {
		t.Fatalf("B Bind = %v, want ErrPortUnavailable", err)
	}
	if b.IsBound() {
		t.Errorf("B IsBound() = true after failed bind")
	}
	if a.boundNext != a {
		t.Errorf("A's bucket list corrupted by B's failed bind")
	}
}

// TestUDPBindCollisionWaitThenUnbind covers a bind collision where B
// suspends behind A; A unbinds, which must wake B and hand it the port.
func TestUDPBindCollisionWaitThenUnbind(t *testing.T) {
	s := newTestStack(t, &recordingTransmitter{})
	a := NewUDPSocket(s)
	b := NewUDPSocket(s)

	if err := a.Bind(context.Background(), 5000, 0); err != nil {
		t.Fatalf("A Bind: %v", err)
	}

	bResult := make(chan error, 1)
	go func() {
		bResult <- b.Bind(context.Background(), 5000, time.Second)
	}()

	// Give B's goroutine time to reach the suspension point.
	time.Sleep(20 * time.Millisecond)

	if err := a.Unbind(); err != nil {
		t.Fatalf("A Unbind: %v", err)
	}

	select {
	case err := <-bResult:
		if err != nil {
			t.Fatalf("B Bind = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("B Bind never returned after A unbound")
	}

	if !b.IsBound() || b.Port() != 5000 {
		t.Errorf("B not bound to port 5000 after wake, port=%d bound=%v", b.Port(), b.IsBound())
	}
	if b.boundNext != b {
		t.Errorf("B's bucket list is not a lone self-loop: next=%v", b.boundNext)
	}
	if a.IsBound() {
		t.Errorf("A still reports bound after Unbind")
	}
}

func TestUDPBindCollisionTimeout(t *testing.T) {
	s := newTestStack(t, &recordingTransmitter{})
	a := NewUDPSocket(s)
	b := NewUDPSocket(s)

	if err := a.Bind(context.Background(), 5000, 0); err != nil {
		t.Fatalf("A Bind: %v", err)
	}

	err := b.Bind(context.Background(), 5000, 30*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("B Bind = %v, want ErrTimeout", err)
	}
	if b.IsBound() {
		t.Errorf("B IsBound() = true after timed-out bind")
	}
	if b.bindInProgress != nil {
		t.Errorf("B.bindInProgress not cleared after timeout")
	}
}

func TestUDPUnbindNotBound(t *testing.T) {
	s := newTestStack(t, &recordingTransmitter{})
	sock := NewUDPSocket(s)
	if err := sock.Unbind(); err != ErrNotBound {
		t.Errorf("Unbind on unbound socket = %v, want ErrNotBound", err)
	}
}
