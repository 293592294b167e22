// Command netxdemo wires a netx.Stack to a single network interface and
// walks through the three core operations this package implements: an IGMP
// join report, a UDP port bind, and a TCP client connect attempt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nxgo/netxcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "netxdemo:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		localAddr  = flag.String("addr", "192.168.1.10", "local IPv4 address for the demo interface")
		netmask    = flag.String("netmask", "255.255.255.0", "subnet mask for the demo interface")
		group      = flag.String("group", "224.0.0.42", "multicast group to join and report")
		serverAddr = flag.String("connect", "192.168.1.1", "address for the demo TCP connect attempt")
		serverPort = flag.Uint("port", 7, "port for the demo TCP connect attempt")
		raw        = flag.Bool("raw", false, "send real packets with a raw IP transmitter (needs elevated privileges)")
	)
	flag.Parse()

	ip, err := netx.ParseV4(*localAddr)
	if err != nil {
		return fmt.Errorf("parse -addr: %w", err)
	}
	mask, err := netx.ParseV4(*netmask)
	if err != nil {
		return fmt.Errorf("parse -netmask: %w", err)
	}
	groupAddr, err := netx.ParseV4(*group)
	if err != nil {
		return fmt.Errorf("parse -group: %w", err)
	}
	server, err := netx.ParseV4(*serverAddr)
	if err != nil {
		return fmt.Errorf("parse -connect: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	demoIface := netx.NewInterface(1500, ip, mask, 0, [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01})

	opts := []netx.Option{netx.WithInterfaces(demoIface)}
	if *raw {
		opts = append(opts, netx.WithTransmitter(netx.NewRawIPTransmitter()))
	}

	stack, err := netx.NewStack(opts...)
	if err != nil {
		return fmt.Errorf("create stack: %w", err)
	}

	fmt.Printf("interface %s/%s joining %s\n", ip, mask, groupAddr)
	if err := stack.JoinGroup(0, groupAddr); err != nil {
		return fmt.Errorf("join group: %w", err)
	}
	if err := stack.ReportSend(ctx, groupAddr, 0, true); err != nil {
		return fmt.Errorf("igmp report: %w", err)
	}
	fmt.Printf("igmp report sent, reports_sent=%d\n", stack.Counters().IGMPReportsSent)

	udpSock := netx.NewUDPSocket(stack)
	if err := udpSock.Bind(ctx, netx.AnyPort, 0); err != nil {
		return fmt.Errorf("udp bind: %w", err)
	}
	fmt.Printf("udp socket bound to port %d\n", udpSock.Port())
	defer udpSock.Unbind()

	tcpSock := netx.NewTCPSocket(stack)
	if err := tcpSock.Bind(netx.AnyPort); err != nil {
		return fmt.Errorf("tcp bind: %w", err)
	}
	fmt.Printf("tcp socket bound to port %d, connecting to %s:%d\n", tcpSock.LocalPort(), server, *serverPort)

	err = tcpSock.Connect(ctx, server, uint16(*serverPort), 0)
	switch {
	case err == nil:
		fmt.Println("tcp connect: SYN sent, established (loopback)")
	case err == netx.ErrInProgress:
		fmt.Println("tcp connect: SYN sent, state =", tcpSock.State())
	default:
		fmt.Println("tcp connect failed:", err)
	}

	fmt.Println("leaving group and unbinding in 2s (Ctrl+C to stop now)...")
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
	}

	if err := stack.LeaveGroup(0, groupAddr); err != nil {
		return fmt.Errorf("leave group: %w", err)
	}
	if err := stack.ReportSend(context.Background(), groupAddr, 0, false); err != nil {
		return fmt.Errorf("igmp leave: %w", err)
	}
	fmt.Println("left group, done")
	return nil
}
