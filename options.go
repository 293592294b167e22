package netx

import (
	"fmt"

	"github.com/nxgo/netxcore/internal/pbuf"
)

// Option configures a Stack during NewStack, following the teacher's
// functional-options pattern (responder.Option in the mDNS responder this
// package's test tooling was modeled on).
type Option func(*Stack) error

// WithInterfaces attaches the given interfaces to the Stack, indexed in
// the order supplied. At least one is required before any protocol
// operation that needs to resolve a route or reference an interface by
// index.
func WithInterfaces(ifs ...*Interface) Option {
	return func(s *Stack) error {
		for i, ifc := range ifs {
			ifc.Index = i
		}
		s.interfaces = append(s.interfaces, ifs...)
		return nil
	}
}

// WithTransmitter overrides the default no-op Transmitter with a real
// ip_packet_send collaborator (e.g. the reference RawIPTransmitter).
func WithTransmitter(t Transmitter) Option {
	return func(s *Stack) error {
		s.transmitter = t
		return nil
	}
}

// WithPacketPool replaces the default packet pool sizing. count is the
// number of fixed chunks; chunkSize is the capacity of each in bytes.
func WithPacketPool(count, chunkSize int) Option {
	return func(s *Stack) error {
		if count <= 0 || chunkSize <= 0 {
			return fmt.Errorf("netx: packet pool count and chunk size must be positive")
		}
		s.pool = pbuf.NewPool(count, chunkSize)
		return nil
	}
}

// WithPortTableSize sets the UDP and TCP bind hash table size. n must be a
// power of two. The original NetX sizes its port tables with a compile-time
// constant; this package exposes the same sizing decision as a runtime
// option instead.
func WithPortTableSize(n int) Option {
	return func(s *Stack) error {
		if n <= 0 || n&(n-1) != 0 {
			return fmt.Errorf("netx: port table size %d is not a power of two", n)
		}
		s.udpBuckets = make([]*UDPSocket, n)
		s.udpMask = uint32(n - 1)
		s.tcpBuckets = make([]*TCPSocket, n)
		s.tcpMask = uint32(n - 1)
		return nil
	}
}

// IGMPRouterVersion selects which peer router version the IGMP reporter
// builds reports for.
type IGMPRouterVersion int

// Supported peer router versions.
const (
	IGMPRouterV1 IGMPRouterVersion = 1
	IGMPRouterV2 IGMPRouterVersion = 2
)

// WithIGMPRouterVersion sets the configured peer router version. Default
// is IGMPRouterV2.
func WithIGMPRouterVersion(v IGMPRouterVersion) Option {
	return func(s *Stack) error {
		if v != IGMPRouterV1 && v != IGMPRouterV2 {
			return fmt.Errorf("netx: unknown IGMP router version %d", v)
		}
		s.igmpRouterVersion = int(v)
		return nil
	}
}

// WithDisableIGMPv2 forces the IGMP reporter to speak IGMPv1 host reports
// only, regardless of the configured peer router version, mirroring
// NetX's NX_DISABLE_IGMPV2 feature define for a host that must never emit
// an IGMPv2-specific message (the group-specific JOIN/LEAVE report types,
// or a LEAVE at all).
func WithDisableIGMPv2() Option {
	return func(s *Stack) error {
		s.disableIGMPv2 = true
		return nil
	}
}

// WithDisableIGMPInfo skips the IGMP reports-sent counter.
func WithDisableIGMPInfo() Option {
	return func(s *Stack) error {
		s.disableIGMPInfo = true
		return nil
	}
}

// WithDisableTCPInfo skips the TCP connection counters.
func WithDisableTCPInfo() Option {
	return func(s *Stack) error {
		s.disableTCPInfo = true
		return nil
	}
}

// WithTCPTimeoutRate overrides the retransmission timer's initial value
// programmed at connect.
func WithTCPTimeoutRate(rate uint32) Option {
	return func(s *Stack) error {
		s.tcpTimeoutRate = rate
		return nil
	}
}

// WithTCPDefaultRxWindow overrides the receive window advertised on a new
// connection.
func WithTCPDefaultRxWindow(window uint32) Option {
	return func(s *Stack) error {
		s.tcpDefaultRxWindow = window
		return nil
	}
}
