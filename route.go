package netx

import "github.com/nxgo/netxcore/internal/xerrors"

// RouteFind resolves an outgoing interface and next hop for dst: for a
// destination on a directly-attached subnet the next hop is the
// destination itself; otherwise it is the matching interface's configured
// gateway. Multicast destinations bypass subnet matching entirely — the
// next hop is always the destination.
//
// Callers needing a specific interface for a multicast send (e.g. the
// IGMP reporter, which is handed an explicit interface index) do not go
// through RouteFind at all.
func (s *Stack) RouteFind(dst Addr) (*Interface, Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routeFindLocked(dst)
}

func (s *Stack) routeFindLocked(dst Addr) (*Interface, Addr, error) {
	if dst.IsMulticast() {
		if len(s.interfaces) == 0 {
			return nil, 0, xerrors.ErrAddrUnreachable
		}
		return s.interfaces[0], dst, nil
	}

	for _, ifc := range s.interfaces {
		if ifc.Attached(dst) {
			return ifc, dst, nil
		}
	}

	for _, ifc := range s.interfaces {
		if ifc.Gateway != 0 {
			return ifc, ifc.Gateway, nil
		}
	}

	return nil, 0, xerrors.ErrAddrUnreachable
}
