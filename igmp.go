package netx

import (
	"context"
	"encoding/binary"

	"github.com/nxgo/netxcore/internal/xerrors"
)

// IGMP wire-header sizes and type bytes (RFC 2236 §2).
const (
	igmpHeaderSize = 8
	ipHeaderSize   = 20
	igmpTTL        = 1

	igmpV1HostReportType = 0x12 // NX_IGMP_VERSION | NX_IGMP_HOST_RESPONSE_TYPE
	igmpV2JoinType       = 0x16
	igmpV2LeaveType      = 0x17
)

// JoinGroup adds group to the join list of the interface at
// interfaceIndex. It does not itself send a report; callers typically
// follow it with ReportSend(ctx, group, interfaceIndex, true).
func (s *Stack) JoinGroup(interfaceIndex int, group Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if interfaceIndex < 0 || interfaceIndex >= len(s.interfaces) {
		return xerrors.ErrInvalidInterface
	}
	s.interfaces[interfaceIndex].Join(group)
	return nil
}

// LeaveGroup removes group from the join list of the interface at
// interfaceIndex. Callers typically precede it with
// ReportSend(ctx, group, interfaceIndex, false) on a v2 peer.
func (s *Stack) LeaveGroup(interfaceIndex int, group Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if interfaceIndex < 0 || interfaceIndex >= len(s.interfaces) {
		return xerrors.ErrInvalidInterface
	}
	s.interfaces[interfaceIndex].Leave(group)
	return nil
}

// ReportSend builds and transmits an IGMP host membership report for
// group on the interface at interfaceIndex, mirroring
// nx_igmp_interface_report_send. If isJoining is false, the caller must
// already have confirmed the configured peer router is running IGMPv2 or
// later: RFC 2236 gives a host no LEAVE message when speaking IGMPv1 to
// its router, and this function does not re-check that for the caller.
func (s *Stack) ReportSend(ctx context.Context, group Addr, interfaceIndex int, isJoining bool) error {
	s.mu.Lock()

	if interfaceIndex < 0 || interfaceIndex >= len(s.interfaces) {
		s.mu.Unlock()
		return xerrors.ErrInvalidInterface
	}

	buf, err := s.pool.Allocate(ctx, ipHeaderSize+igmpHeaderSize, 0)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if err := buf.Prepend(igmpHeaderSize); err != nil {
		buf.Release()
		s.mu.Unlock()
		return err
	}
	buf.Iface = s.interfaces[interfaceIndex]

	if isJoining && !s.disableIGMPInfo {
		s.counters.IGMPReportsSent++
	}

	var word0, word1 uint32
	word1 = uint32(group)

	if s.igmpRouterVersion == int(IGMPRouterV1) || s.disableIGMPv2 {
		word0 = igmpV1HostReportType << 24
	} else if isJoining {
		word0 = igmpV2JoinType << 24
	} else {
		word0 = igmpV2LeaveType << 24
	}

	word0 = igmpChecksum(word0, word1)

	wire := buf.Bytes()
	binary.BigEndian.PutUint32(wire[0:4], word0)
	binary.BigEndian.PutUint32(wire[4:8], word1)

	var dst Addr
	if isJoining {
		dst = group
	} else {
		dst = AllRouters
	}
	buf.NextHop = dst

	transmitter := s.transmitter
	s.mu.Unlock()

	return transmitter.Send(ctx, buf, dst, NormalPrecedence, igmpTTL, ProtocolIGMP, FragmentOkay)
}

// igmpChecksum computes the 16-bit one's-complement checksum over the two
// IGMP header words (checksum field assumed zero in word0 going in) and
// returns word0 with the checksum ORed into its low 16 bits. The fold is
// applied twice: the first fold can itself carry out of bit 16, so a
// single fold is not sufficient.
func igmpChecksum(word0, word1 uint32) uint32 {
	sum := (word0 >> 16) + (word0 & 0xFFFF)
	sum += (word1 >> 16) + (word1 & 0xFFFF)
	sum = (sum >> 16) + (sum & 0xFFFF)
	sum = (sum >> 16) + (sum & 0xFFFF)
	return word0 | (^sum & 0xFFFF)
}
