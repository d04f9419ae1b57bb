package probe

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

var icmpPayload = []byte("wg-keepalive")

// ICMP sends a single ICMP echo request without shelling out.
// Unprivileged mode uses datagram ICMP sockets, which on Linux require the
// process group to be within net.ipv4.ping_group_range.
type ICMP struct {
	Timeout    time.Duration
	Privileged bool
}

type icmpParams struct {
	network string
	listen  string
	proto   int
	request icmp.Type
	reply   icmp.Type
	unreach icmp.Type
}

func (p *ICMP) params(v6 bool) icmpParams {
	if v6 {
		ip := icmpParams{network: "udp6", listen: "::", proto: protocolIPv6ICMP, request: ipv6.ICMPTypeEchoRequest, reply: ipv6.ICMPTypeEchoReply, unreach: ipv6.ICMPTypeDestinationUnreachable}
		if p.Privileged {
			ip.network = "ip6:ipv6-icmp"
		}
		return ip
	}
	ip := icmpParams{network: "udp4", listen: "0.0.0.0", proto: protocolICMP, request: ipv4.ICMPTypeEcho, reply: ipv4.ICMPTypeEchoReply, unreach: ipv4.ICMPTypeDestinationUnreachable}
	if p.Privileged {
		ip.network = "ip4:icmp"
	}
	return ip
}

func (p *ICMP) Probe(ctx context.Context, t Target) (bool, error) {
	addr := t.Address.Unmap()
	params := p.params(addr.Is6())
	c, err := icmp.ListenPacket(params.network, params.listen)
	if err != nil {
		return false, fmt.Errorf("icmp listen %s: %w", params.network, err)
	}
	defer c.Close()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	err = c.SetDeadline(deadline)
	if err != nil {
		return false, err
	}
	stop := context.AfterFunc(ctx, func() {
		// unblock ReadFrom on cancellation
		c.SetDeadline(time.Now())
	})
	defer stop()

	seq := rand.Intn(1 << 16)
	msg := icmp.Message{
		Type: params.request,
		Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: seq, Data: icmpPayload},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return false, err
	}
	var dst net.Addr = &net.UDPAddr{IP: addr.AsSlice(), Zone: addr.Zone()}
	if p.Privileged {
		dst = &net.IPAddr{IP: addr.AsSlice(), Zone: addr.Zone()}
	}
	if _, err := c.WriteTo(wb, dst); err != nil {
		return false, fmt.Errorf("icmp write to %s: %w", addr, err)
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := c.ReadFrom(rb)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return false, fmt.Errorf("icmp %s: %w", addr, ctx.Err())
				}
				return false, nil
			}
			return false, fmt.Errorf("icmp read: %w", err)
		}
		rm, err := icmp.ParseMessage(params.proto, rb[:n])
		if err != nil {
			continue
		}
		switch rm.Type {
		case params.reply:
			echo, ok := rm.Body.(*icmp.Echo)
			// the kernel rewrites the ID of datagram sockets, so only Seq is checked
			if ok && echo.Seq == seq && peerIs(peer, addr.WithZone("").String()) {
				return true, nil
			}
		case params.unreach:
			return false, nil
		}
	}
}

func peerIs(peer net.Addr, addr string) bool {
	switch peer := peer.(type) {
	case *net.UDPAddr:
		return peer.IP.String() == addr
	case *net.IPAddr:
		return peer.IP.String() == addr
	default:
		return false
	}
}
