// Package iface holds the per-interface state an IP instance owns: MTU,
// link address, and the multicast groups currently joined on it. All
// fields are mutated only while the owning Stack's lock is held.
package iface

import "github.com/nxgo/netxcore/internal/addr"

// LinkAddr is a 6-byte hardware address (e.g. Ethernet MAC).
type LinkAddr [6]byte

// Interface describes one network interface attached to a Stack.
type Interface struct {
	// Index is this interface's position in the owning Stack's interface
	// table, used by callers that reference an interface by index (e.g.
	// the IGMP reporter).
	Index int
	// MTU is the maximum transmission unit in bytes.
	MTU int
	// Address is this interface's own IPv4 address.
	Address addr.Addr
	// Link is the interface's hardware address.
	Link LinkAddr
	// Gateway is the configured next hop for destinations not on this
	// interface's directly-attached subnet.
	Gateway addr.Addr
	// Netmask defines the directly-attached subnet for Address.
	Netmask addr.Addr

	joined []addr.Addr
}

// Attached reports whether dst falls within this interface's
// directly-attached subnet.
func (i *Interface) Attached(dst addr.Addr) bool {
	return dst&i.Netmask == i.Address&i.Netmask
}

// Joined reports whether group is in this interface's multicast join list.
func (i *Interface) Joined(group addr.Addr) bool {
	for _, g := range i.joined {
		if g == group {
			return true
		}
	}
	return false
}

// Join adds group to the interface's multicast join list, if not already
// present. Caller must hold the owning Stack's lock.
func (i *Interface) Join(group addr.Addr) {
	if i.Joined(group) {
		return
	}
	i.joined = append(i.joined, group)
}

// Leave removes group from the interface's multicast join list. Caller
// must hold the owning Stack's lock.
func (i *Interface) Leave(group addr.Addr) {
	for idx, g := range i.joined {
		if g == group {
			i.joined = append(i.joined[:idx], i.joined[idx+1:]...)
			return
		}
	}
}

// JoinedGroups returns a snapshot of the current multicast join list.
func (i *Interface) JoinedGroups() []addr.Addr {
	out := make([]addr.Addr, len(i.joined))
	copy(out, i.joined)
	return out
}
