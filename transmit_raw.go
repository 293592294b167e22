package netx

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"

	"golang.org/x/net/ipv4"

	"github.com/nxgo/netxcore/internal/addr"
	"github.com/nxgo/netxcore/internal/pbuf"
	"github.com/nxgo/netxcore/internal/xerrors"
)

// RawIPTransmitter is the reference Transmitter for a real network
// interface: it builds the IPv4 header around the buffer's existing
// content and writes it to a raw IP socket, one per distinct protocol
// number, opened lazily.
//
// This mirrors the teacher's UDPv4Transport: a thin wrapper around a
// golang.org/x/net/ipv4 connection, with platform socket options applied
// through the same setSocketOptions split the teacher uses for
// SO_REUSEADDR/SO_REUSEPORT (socket_unix.go / socket_windows.go).
type RawIPTransmitter struct {
	mu    sync.Mutex
	conns map[Protocol]*ipv4.RawConn
}

// NewRawIPTransmitter creates a Transmitter backed by raw IP sockets.
// Opening a raw socket typically requires elevated privileges (CAP_NET_RAW
// on Linux, Administrator on Windows); NewRawIPTransmitter itself never
// fails, since no socket is opened until the first Send for a given
// protocol.
func NewRawIPTransmitter() *RawIPTransmitter {
	return &RawIPTransmitter{conns: make(map[Protocol]*ipv4.RawConn)}
}

// Send implements Transmitter by wrapping buf's content in an IPv4 header
// and writing it to the raw socket for proto, opening one on first use.
func (t *RawIPTransmitter) Send(ctx context.Context, buf *pbuf.Buffer, dst addr.Addr, prec Precedence, ttl uint8, proto Protocol, frag FragmentPolicy) error {
	defer buf.Release()

	conn, err := t.connFor(proto)
	if err != nil {
		return err
	}

	payload := buf.Bytes()
	header := &ipv4.Header{
		Version:  4,
		Len:      ipv4.HeaderLen,
		TOS:      int(prec) << 5,
		TotalLen: ipv4.HeaderLen + len(payload),
		TTL:      int(ttl),
		Protocol: int(proto),
		Dst:      dst.IP(),
	}
	if frag == FragmentDontFragment {
		header.Flags = ipv4.DontFragment
	}

	select {
	case <-ctx.Done():
		return xerrors.ErrAborted
	default:
	}

	if err := conn.WriteTo(header, payload, nil); err != nil {
		return fmt.Errorf("netx: raw ip write to %s: %w", dst, err)
	}
	return nil
}

func (t *RawIPTransmitter) connFor(proto Protocol) (*ipv4.RawConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if conn, ok := t.conns[proto]; ok {
		return conn, nil
	}

	packetConn, err := net.ListenPacket(fmt.Sprintf("ip4:%d", proto), "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("netx: open raw socket for protocol %d: %w", proto, err)
	}

	if err := tuneRawSocket(packetConn); err != nil {
		_ = packetConn.Close()
		return nil, err
	}

	rawConn, err := ipv4.NewRawConn(packetConn)
	if err != nil {
		_ = packetConn.Close()
		return nil, fmt.Errorf("netx: wrap raw socket for protocol %d: %w", proto, err)
	}
	if err := rawConn.SetHeaderIncluded(true); err != nil {
		_ = packetConn.Close()
		return nil, fmt.Errorf("netx: enable IP_HDRINCL for protocol %d: %w", proto, err)
	}

	t.conns[proto] = rawConn
	return rawConn, nil
}

// tuneRawSocket applies the platform socket options (setSocketOptions,
// defined per-OS in transmit_unix.go / transmit_windows.go) to conn's
// underlying file descriptor.
func tuneRawSocket(conn net.PacketConn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("netx: raw socket control: %w", err)
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = setSocketOptions(fd)
	})
	if err != nil {
		return fmt.Errorf("netx: raw socket control: %w", err)
	}
	return sockErr
}
