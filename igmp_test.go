package netx

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/nxgo/netxcore/internal/pbuf"
)

// recordingTransmitter captures the arguments of its last Send call instead
// of putting anything on the wire, so tests can assert on the constructed
// datagram.
type recordingTransmitter struct {
	calls []recordedSend
}

type recordedSend struct {
	wire []byte
	dst  Addr
	ttl  uint8
	prec Precedence
	prot Protocol
	frag FragmentPolicy
}

func (r *recordingTransmitter) Send(_ context.Context, buf *pbuf.Buffer, dst Addr, prec Precedence, ttl uint8, prot Protocol, frag FragmentPolicy) error {
	wire := make([]byte, buf.Length())
	copy(wire, buf.Bytes())
	r.calls = append(r.calls, recordedSend{wire: wire, dst: dst, ttl: ttl, prec: prec, prot: prot, frag: frag})
	buf.Release()
	return nil
}

func newTestStack(t *testing.T, transmitter Transmitter, opts ...Option) *Stack {
	t.Helper()
	ifc := NewInterface(1500, FromV4(192, 168, 1, 10), FromV4(255, 255, 255, 0), 0, [6]byte{})
	allOpts := append([]Option{WithInterfaces(ifc), WithTransmitter(transmitter)}, opts...)
	s, err := NewStack(allOpts...)
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	return s
}

func TestReportSend(t *testing.T) {
	group := FromV4(224, 0, 0, 42)

	tests := []struct {
		name        string
		routerV     IGMPRouterVersion
		isJoining   bool
		wantType    byte
		wantDst     Addr
		wantCounted bool
	}{
		{
			name:        "igmpv2 join",
			routerV:     IGMPRouterV2,
			isJoining:   true,
			wantType:    0x16,
			wantDst:     group,
			wantCounted: true,
		},
		{
			name:        "igmpv1 peer always reports host-report type",
			routerV:     IGMPRouterV1,
			isJoining:   true,
			wantType:    0x12,
			wantDst:     group,
			wantCounted: true,
		},
		{
			name:        "igmpv2 leave",
			routerV:     IGMPRouterV2,
			isJoining:   false,
			wantType:    0x17,
			wantDst:     AllRouters,
			wantCounted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &recordingTransmitter{}
			s := newTestStack(t, tx, WithIGMPRouterVersion(tt.routerV))

			if err := s.ReportSend(context.Background(), group, 0, tt.isJoining); err != nil {
				t.Fatalf("ReportSend: %v", err)
			}
			if len(tx.calls) != 1 {
				t.Fatalf("Send called %d times, want 1", len(tx.calls))
			}
			call := tx.calls[0]

			if len(call.wire) != 8 {
				t.Fatalf("datagram length = %d, want 8", len(call.wire))
			}
			if call.wire[0] != tt.wantType {
				t.Errorf("type byte = %#x, want %#x", call.wire[0], tt.wantType)
			}
			if call.dst != tt.wantDst {
				t.Errorf("dst = %s, want %s", call.dst, tt.wantDst)
			}
			if call.ttl != 1 {
				t.Errorf("ttl = %d, want 1", call.ttl)
			}
			if call.prot != ProtocolIGMP {
				t.Errorf("protocol = %d, want %d", call.prot, ProtocolIGMP)
			}
			if gotGroup := Addr(binary.BigEndian.Uint32(call.wire[4:8])); gotGroup != group {
				t.Errorf("group word = %s, want %s", gotGroup, group)
			}

			word0 := binary.BigEndian.Uint32(call.wire[0:4])
			word1 := binary.BigEndian.Uint32(call.wire[4:8])
			sum := (word0 >> 16) + (word0 & 0xFFFF) + (word1 >> 16) + (word1 & 0xFFFF)
			sum = (sum >> 16) + (sum & 0xFFFF)
			sum = (sum >> 16) + (sum & 0xFFFF)
			if sum != 0xFFFF {
				t.Errorf("header checksum sum = %#x, want 0xffff", sum)
			}

			if got := s.Counters().IGMPReportsSent; (got == 1) != tt.wantCounted {
				t.Errorf("IGMPReportsSent = %d, want counted=%v", got, tt.wantCounted)
			}
		})
	}
}

func TestReportSendInvalidInterface(t *testing.T) {
	s := newTestStack(t, &recordingTransmitter{})
	err := s.ReportSend(context.Background(), FromV4(224, 0, 0, 42), 5, true)
	if err != ErrInvalidInterface {
		t.Fatalf("ReportSend with bad index = %v, want ErrInvalidInterface", err)
	}
}

func TestIGMPChecksum(t *testing.T) {
	word0 := uint32(0x16000000)
	word1 := uint32(0xE000002A)

	checked := igmpChecksum(word0, word1)

	sum := (checked >> 16) + (checked & 0xFFFF)
	sum += (word1 >> 16) + (word1 & 0xFFFF)
	sum = (sum >> 16) + (sum & 0xFFFF)
	sum = (sum >> 16) + (sum & 0xFFFF)
	if sum != 0xFFFF {
		t.Errorf("checksum verification sum = %#x, want 0xffff", sum)
	}
}
