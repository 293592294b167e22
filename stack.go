package netx

import (
	"context"
	"sync"

	"github.com/nxgo/netxcore/internal/addr"
	"github.com/nxgo/netxcore/internal/iface"
	"github.com/nxgo/netxcore/internal/pbuf"
	"github.com/nxgo/netxcore/internal/xerrors"
)

// Addr is the IPv4 address type used throughout this package's public
// API, aliased from internal/addr the way the teacher aliases
// responder.ResourceRecord from internal/records.
type Addr = addr.Addr

// Interface is one network interface attached to a Stack, aliased from
// internal/iface.
type Interface = iface.Interface

// Well-known multicast addresses (RFC 1112, RFC 2236).
const (
	AllHosts   = addr.AllHosts
	AllRouters = addr.AllRouters
)

// Status sentinels. Compare with errors.Is, e.g.
// errors.Is(err, netx.ErrNotBound).
var (
	ErrNoMem             = xerrors.ErrNoMem
	ErrNoFreePorts       = xerrors.ErrNoFreePorts
	ErrAlreadyBound      = xerrors.ErrAlreadyBound
	ErrNotBound          = xerrors.ErrNotBound
	ErrNotClosed         = xerrors.ErrNotClosed
	ErrInvalidInterface  = xerrors.ErrInvalidInterface
	ErrAddrUnreachable   = xerrors.ErrAddrUnreachable
	ErrInProgress        = xerrors.ErrInProgress
	ErrPortUnavailable   = xerrors.ErrPortUnavailable
	ErrTimeout           = xerrors.ErrTimeout
	ErrAborted           = xerrors.ErrAborted
)

// ParseV4 parses a dotted-quad IPv4 address into an Addr.
func ParseV4(s string) (Addr, error) {
	return addr.ParseV4(s)
}

// FromV4 builds an Addr from four octets in network order (a.b.c.d).
func FromV4(a, b, c, d byte) Addr {
	return addr.FromV4(a, b, c, d)
}

// NewInterface builds an Interface with the given MTU, local address,
// subnet mask, and default gateway. Attach it to a Stack with
// WithInterfaces at construction time.
func NewInterface(mtu int, address, netmask, gateway Addr, link [6]byte) *Interface {
	return &Interface{
		MTU:     mtu,
		Address: address,
		Netmask: netmask,
		Gateway: gateway,
		Link:    iface.LinkAddr(link),
	}
}

// Counters mirrors the IP instance's statistics, incremented only while
// the Stack's lock is held. Counters itself is returned as a plain
// snapshot copy, so a caller reading it never races with a writer past the
// copy itself.
type Counters struct {
	IGMPReportsSent      uint64
	TCPActiveConnections uint64
	TCPConnections       uint64
}

// Stack is the process-wide IP instance: the protection lock, the packet
// pool, the interface table, and the per-protocol port tables. It is
// created once at boot and never torn down during operation; every
// protocol operation below takes a *Stack and serializes on its lock for
// the duration of the state it touches.
type Stack struct {
	mu sync.Mutex

	pool        *pbuf.Pool
	interfaces  []*Interface
	transmitter Transmitter

	udpBuckets []*UDPSocket
	udpMask    uint32

	tcpBuckets []*TCPSocket
	tcpMask    uint32

	igmpRouterVersion  int
	disableIGMPv2      bool
	disableIGMPInfo    bool
	disableTCPInfo     bool
	tcpTimeoutRate     uint32
	tcpDefaultRxWindow uint32

	counters Counters
}

// NewStack builds a Stack from the given options. It succeeds without any
// interface; operations that resolve a route or reference an interface by
// index then fail until one is supplied via WithInterfaces.
func NewStack(opts ...Option) (*Stack, error) {
	s := &Stack{
		udpBuckets:         make([]*UDPSocket, defaultPortTableSize),
		udpMask:            uint32(defaultPortTableSize - 1),
		tcpBuckets:         make([]*TCPSocket, defaultPortTableSize),
		tcpMask:            uint32(defaultPortTableSize - 1),
		igmpRouterVersion:  2,
		tcpTimeoutRate:     defaultTCPTimeoutRate,
		tcpDefaultRxWindow: defaultTCPRxWindow,
		transmitter:        discardTransmitter{},
		pool:               pbuf.NewPool(defaultPoolCount, defaultChunkSize),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Counters returns a snapshot of the instance's statistics.
func (s *Stack) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// Interfaces returns the Stack's attached interfaces in index order.
func (s *Stack) Interfaces() []*Interface {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Interface, len(s.interfaces))
	copy(out, s.interfaces)
	return out
}

type housekeepingKey struct{}

// WithHousekeeping marks ctx as belonging to the IP instance's internal
// housekeeping goroutine. Connect checks for this marker because the
// housekeeping path must never suspend itself: doing so would deadlock the
// goroutine responsible for driving the lock's other waiters forward.
func WithHousekeeping(ctx context.Context) context.Context {
	return context.WithValue(ctx, housekeepingKey{}, true)
}

func isHousekeeping(ctx context.Context) bool {
	v, _ := ctx.Value(housekeepingKey{}).(bool)
	return v
}

const (
	defaultPortTableSize  = 128
	defaultPoolCount      = 64
	defaultChunkSize      = 1536
	defaultTCPTimeoutRate = 3 // seconds, scaled by the caller's tick unit
	defaultTCPRxWindow    = 8192
)
