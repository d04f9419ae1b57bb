package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/miekg/dns"
)

// DNS sends one DNS query to the target on UDP port 53.
// Any answer, whatever its rcode, means the gateway is up.
// So does ICMP port unreachable, which surfaces as ECONNREFUSED.
type DNS struct {
	// Name is the name queried. "." (the default) asks for the root NS set.
	Name    string
	Timeout time.Duration
	// Port defaults to 53.
	Port int
}

func (p *DNS) Probe(ctx context.Context, t Target) (bool, error) {
	name := p.Name
	qtype := dns.TypeA
	if name == "" || name == "." {
		name = "."
		qtype = dns.TypeNS
	}
	port := p.Port
	if port == 0 {
		port = 53
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	c := &dns.Client{Net: "udp", Timeout: timeout}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true
	server := net.JoinHostPort(t.Address.Unmap().String(), strconv.Itoa(port))
	_, _, err := c.ExchangeContext(ctx, m, server)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, fmt.Errorf("dns %s: %w", server, ctx.Err())
		}
		return false, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	return false, fmt.Errorf("dns %s: %w", server, err)
}
