// Package netx implements the core of an embedded TCP/IP stack: IGMP host
// membership reports, TCP client-side active-open, and UDP port binding,
// together with the per-instance lock, packet-buffer pool, and
// cooperative suspension discipline they share.
//
// A Stack is the process-wide IP instance. It owns the protection lock,
// the packet pool, the network interfaces, and the per-protocol port
// tables; every protocol operation takes a *Stack and serializes on its
// lock. Sockets are created against a Stack and threaded onto its
// hash-indexed bind tables.
//
// Out of scope: IPv6, TLS, TCP server/accept, the retransmission timer
// wheel, full IGMP query handling, ARP/ND, device drivers, and DNS. Those
// are separate collaborators this package consumes through the
// Transmitter interface rather than implements.
package netx
