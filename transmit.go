package netx

import (
	"context"

	"github.com/nxgo/netxcore/internal/addr"
	"github.com/nxgo/netxcore/internal/iface"
	"github.com/nxgo/netxcore/internal/pbuf"
)

// Precedence mirrors the NX_IP_NORMAL/NX_IP_* precedence field a caller
// passes to ip_packet_send; it is opaque to this package beyond being
// handed to the Transmitter.
type Precedence uint8

// NormalPrecedence is the precedence used by every operation in this
// package.
const NormalPrecedence Precedence = 0

// FragmentPolicy controls whether the transmitter may fragment the
// outgoing datagram.
type FragmentPolicy uint8

const (
	// FragmentOkay allows fragmentation if the datagram exceeds the path
	// MTU.
	FragmentOkay FragmentPolicy = iota
	// FragmentDontFragment forbids it.
	FragmentDontFragment
)

// Protocol identifies the IP payload protocol number being sent.
type Protocol uint8

// Protocol numbers used by this package (RFC 790).
const (
	ProtocolIGMP Protocol = 2
	ProtocolTCP  Protocol = 6
	ProtocolUDP  Protocol = 17
)

// Transmitter is the ip_packet_send collaborator: the interface between
// this package's protocol logic and whatever actually puts bytes on the
// wire. It takes ownership of buf: the caller must not touch it after the
// call returns, success or not.
type Transmitter interface {
	Send(ctx context.Context, buf *pbuf.Buffer, dst addr.Addr, prec Precedence, ttl uint8, proto Protocol, frag FragmentPolicy) error
}

// discardTransmitter releases buffers without sending anything. It is the
// default Transmitter for a Stack built without WithTransmitter, so unit
// tests that only exercise protocol state don't need a live socket.
type discardTransmitter struct{}

func (discardTransmitter) Send(_ context.Context, buf *pbuf.Buffer, _ addr.Addr, _ Precedence, _ uint8, _ Protocol, _ FragmentPolicy) error {
	buf.Release()
	return nil
}

// RouteFinder resolves an outgoing interface and next-hop address for a
// destination. Stack satisfies it through RouteFind; nothing in this
// package takes a RouteFinder, so it serves only callers outside it.
type RouteFinder interface {
	RouteFind(dst addr.Addr) (*iface.Interface, addr.Addr, error)
}
