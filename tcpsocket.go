package netx

import (
	"context"
	"math/rand"
	"time"

	"github.com/nxgo/netxcore/internal/pbuf"
	"github.com/nxgo/netxcore/internal/suspend"
	"github.com/nxgo/netxcore/internal/xerrors"
)

// tcpHeaderSize is the fixed TCP header size used for the MTU check in
// Connect; this stack never negotiates options that would grow the header
// past the 20-byte minimum.
const tcpHeaderSize = 20

// TCPState is one of the client-initiated subset of RFC 793 states this
// package drives. LISTEN and the states reachable only through passive
// open are included in the type for completeness but are never entered by
// Connect.
type TCPState int

// TCP connection states.
const (
	TCPClosed TCPState = iota
	TCPListen
	TCPSynSent
	TCPSynReceived
	TCPEstablished
	TCPFinWait1
	TCPFinWait2
	TCPCloseWait
	TCPClosing
	TCPLastAck
	TCPTimeWait
)

func (st TCPState) String() string {
	switch st {
	case TCPClosed:
		return "CLOSED"
	case TCPListen:
		return "LISTEN"
	case TCPSynSent:
		return "SYN_SENT"
	case TCPSynReceived:
		return "SYN_RECEIVED"
	case TCPEstablished:
		return "ESTABLISHED"
	case TCPFinWait1:
		return "FIN_WAIT_1"
	case TCPFinWait2:
		return "FIN_WAIT_2"
	case TCPCloseWait:
		return "CLOSE_WAIT"
	case TCPClosing:
		return "CLOSING"
	case TCPLastAck:
		return "LAST_ACK"
	case TCPTimeWait:
		return "TIME_WAIT"
	default:
		return "UNKNOWN"
	}
}

// TCPSocket is a client-side TCP endpoint. The zero value is not usable;
// create one with NewTCPSocket.
type TCPSocket struct {
	stack *Stack

	state     TCPState
	localPort uint16

	boundNext, boundPrev *TCPSocket

	connectAddr Addr
	connectPort uint16
	iface       *Interface
	nextHop     Addr

	txSeq uint32
	rxSeq uint32

	rxWindowDefault  uint32
	rxWindowCurrent  uint32
	rxWindowLastSent uint32

	congestionWindow uint32
	outstandingBytes uint32
	finReceived      bool
	timeout          uint32
	retries          uint32

	txQueueHead, txQueueTail *pbuf.Buffer
	txQueueCount             int
	rxQueueHead, rxQueueTail *pbuf.Buffer
	rxQueueCount             int

	connectSuspended *suspend.Waiter
}

// NewTCPSocket creates a closed, unbound TCP socket owned by s.
func NewTCPSocket(s *Stack) *TCPSocket {
	return &TCPSocket{stack: s, rxWindowDefault: s.tcpDefaultRxWindow}
}

// State returns the socket's current connection state.
func (t *TCPSocket) State() TCPState {
	t.stack.mu.Lock()
	defer t.stack.mu.Unlock()
	return t.state
}

// LocalPort returns the socket's bound local port, or 0 if unbound.
func (t *TCPSocket) LocalPort() uint16 {
	t.stack.mu.Lock()
	defer t.stack.mu.Unlock()
	return t.localPort
}

func spliceTCP(s *Stack, index uint32, sock *TCPSocket) {
	head := s.tcpBuckets[index]
	if head == nil {
		sock.boundNext = sock
		sock.boundPrev = sock
		s.tcpBuckets[index] = sock
		return
	}
	last := head.boundPrev
	sock.boundNext = head
	sock.boundPrev = last
	last.boundNext = sock
	head.boundPrev = sock
}

func (s *Stack) tcpPortInUseLocked(port uint16) bool {
	index := hashPort(port, s.tcpMask)
	head := s.tcpBuckets[index]
	if head == nil {
		return false
	}
	cur := head
	for {
		if cur.localPort == port {
			return true
		}
		cur = cur.boundNext
		if cur == head {
			return false
		}
	}
}

func (s *Stack) tcpFreePortFindLocked() (uint16, error) {
	const span = ephemeralPortEnd - ephemeralPortStart + 1
	start := ephemeralPortStart + rand.Intn(span)

	for i := 0; i < span; i++ {
		port := ephemeralPortStart + (start-ephemeralPortStart+i)%span
		if !s.tcpPortInUseLocked(uint16(port)) {
			return uint16(port), nil
		}
	}
	return 0, ErrNoFreePorts
}

// Bind claims a local port for an active-open client socket. Unlike UDP
// bind, a TCP client bind never waits for a contended port: this package
// only drives active opens, with no server side ever giving a bound port
// back, so there is nothing productive to suspend for.
func (t *TCPSocket) Bind(port uint16) error {
	s := t.stack
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.boundNext != nil {
		return ErrAlreadyBound
	}

	if port == AnyPort {
		p, err := s.tcpFreePortFindLocked()
		if err != nil {
			return err
		}
		port = p
	} else if s.tcpPortInUseLocked(port) {
		return ErrPortUnavailable
	}

	t.localPort = port
	spliceTCP(s, hashPort(port, s.tcpMask), t)
	return nil
}

// connectWaiterCtx is the suspend.Waiter.Control payload for a pending
// Connect: the socket whose connect_suspended_thread slot it occupies.
type connectWaiterCtx struct {
	socket *TCPSocket
}

// Connect drives a CLOSED -> SYN_SENT transition and emits the initial SYN,
// mirroring nx_tcp_client_socket_connect's rollback-on-error handling and
// its special case for the IP housekeeping thread, which must never
// suspend itself.
func (t *TCPSocket) Connect(ctx context.Context, server Addr, serverPort uint16, wait time.Duration) error {
	s := t.stack
	s.mu.Lock()

	if t.boundNext == nil {
		s.mu.Unlock()
		return ErrNotBound
	}
	if t.state != TCPClosed {
		s.mu.Unlock()
		return ErrNotClosed
	}

	ifc, nextHop, err := s.routeFindLocked(server)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if !s.disableTCPInfo {
		s.counters.TCPActiveConnections++
		s.counters.TCPConnections++
	}

	t.state = TCPSynSent
	t.connectAddr = server
	t.connectPort = serverPort

	if ifc.MTU < ipHeaderSize+tcpHeaderSize {
		if !s.disableTCPInfo {
			s.counters.TCPActiveConnections--
			s.counters.TCPConnections--
		}
		t.state = TCPClosed
		t.connectAddr = 0
		t.connectPort = 0
		t.nextHop = 0
		s.mu.Unlock()
		return xerrors.ErrInvalidInterface
	}

	t.iface = ifc
	t.nextHop = nextHop

	if t.txSeq == 0 {
		t.txSeq = rand.Uint32()
	} else {
		t.txSeq = t.txSeq + 0x10000 + uint32(rand.Intn(0x10000))
	}

	t.rxWindowCurrent = t.rxWindowDefault
	t.rxWindowLastSent = t.rxWindowDefault
	t.finReceived = false
	t.txSeq++

	t.timeout = s.tcpTimeoutRate
	t.retries = 0

	t.congestionWindow = 0
	t.outstandingBytes = 0
	t.txQueueHead, t.txQueueTail, t.txQueueCount = nil, nil, 0
	t.rxQueueHead, t.rxQueueTail, t.rxQueueCount = nil, nil, 0

	synSeq := t.txSeq - 1

	buf, allocErr := s.pool.Allocate(ctx, ipHeaderSize+tcpHeaderSize, 0)
	if allocErr != nil {
		if !s.disableTCPInfo {
			s.counters.TCPActiveConnections--
			s.counters.TCPConnections--
		}
		t.state = TCPClosed
		t.connectAddr = 0
		t.connectPort = 0
		t.nextHop = 0
		s.mu.Unlock()
		return allocErr
	}
	if err := buf.Prepend(tcpHeaderSize); err != nil {
		buf.Release()
		if !s.disableTCPInfo {
			s.counters.TCPActiveConnections--
			s.counters.TCPConnections--
		}
		t.state = TCPClosed
		t.connectAddr = 0
		t.connectPort = 0
		t.nextHop = 0
		s.mu.Unlock()
		return err
	}
	buf.Iface = ifc
	buf.NextHop = nextHop
	writeSynSegment(buf, t.localPort, serverPort, synSeq, t.rxWindowCurrent)

	transmitter := s.transmitter

	if wait > 0 && !isHousekeeping(ctx) {
		var waiter *suspend.Waiter
		waiter = suspend.NewWaiter(func(status error) {
			s.mu.Lock()
			if t.connectSuspended == waiter {
				t.connectSuspended = nil
				if !s.disableTCPInfo {
					s.counters.TCPActiveConnections--
					s.counters.TCPConnections--
				}
				t.state = TCPClosed
				t.connectAddr = 0
				t.connectPort = 0
				t.nextHop = 0
			}
			s.mu.Unlock()
		})
		waiter.Control = &connectWaiterCtx{socket: t}
		t.connectSuspended = waiter

		s.mu.Unlock()
		if err := transmitter.Send(ctx, buf, nextHop, NormalPrecedence, tcpDefaultTTL, ProtocolTCP, FragmentOkay); err != nil {
			return err
		}

		return suspend.Suspend(ctx, waiter, func() {}, wait)
	}

	s.mu.Unlock()
	if err := transmitter.Send(ctx, buf, nextHop, NormalPrecedence, tcpDefaultTTL, ProtocolTCP, FragmentOkay); err != nil {
		return err
	}
	return ErrInProgress
}

// tcpDefaultTTL is the TTL used for outbound TCP segments; this stack does
// not expose per-socket TTL configuration.
const tcpDefaultTTL = 64

// writeSynSegment fills a minimal TCP SYN header into buf's writable
// region. Options (MSS, window scale) are not supported; the data offset
// is fixed at the 20-byte minimum.
func writeSynSegment(buf *pbuf.Buffer, srcPort, dstPort uint16, seq uint32, window uint32) {
	wire := buf.Bytes()
	putUint16(wire[0:2], srcPort)
	putUint16(wire[2:4], dstPort)
	putUint32(wire[4:8], seq)
	putUint32(wire[8:12], 0) // ack number, unset until the handshake's second leg
	wire[12] = 5 << 4        // data offset: 5 32-bit words, no options
	wire[13] = 0x02          // flags: SYN
	putUint16(wire[14:16], uint16(window))
	putUint16(wire[16:18], 0) // checksum left zero; nothing in this package computes it
	putUint16(wire[18:20], 0) // urgent pointer
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
