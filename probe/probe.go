// Package probe checks whether a tunnel's gateway is reachable.
//
// A Prober answers (true, nil) for a confirmed reply and (false, nil) for a clean "no reply".
// Anything else is reported as (false, err); callers treat it as a failure as well, but log the error.
package probe

import (
	"context"
	"fmt"
	"net/netip"
	"time"
)

// Target is what is probed.
type Target struct {
	// Name is the tunnel (interface) name. Only the handshake probe uses it.
	Name    string
	Address netip.Addr
}

func (t Target) String() string {
	return fmt.Sprintf("%s (%s)", t.Name, t.Address)
}

type Prober interface {
	Probe(ctx context.Context, t Target) (ok bool, err error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, t Target) (bool, error)

func (f ProberFunc) Probe(ctx context.Context, t Target) (bool, error) { return f(ctx, t) }

const (
	KindPing      = "ping"
	KindICMP      = "icmp"
	KindHandshake = "handshake"
	KindDNS       = "dns"
)

type Options struct {
	Kind    string
	Timeout time.Duration
	// Privileged is used by KindICMP.
	Privileged bool
	// StaleThreshold is used by KindHandshake.
	StaleThreshold time.Duration
	// DNSName is used by KindDNS.
	DNSName string
}

// New returns the Prober selected by opts.Kind.
func New(opts Options) (Prober, error) {
	switch opts.Kind {
	case KindPing, "":
		return &PingCommand{Timeout: opts.Timeout}, nil
	case KindICMP:
		return &ICMP{Timeout: opts.Timeout, Privileged: opts.Privileged}, nil
	case KindHandshake:
		return &Handshake{StaleThreshold: opts.StaleThreshold}, nil
	case KindDNS:
		return &DNS{Name: opts.DNSName, Timeout: opts.Timeout}, nil
	default:
		return nil, fmt.Errorf("unknown probe kind %q (want ping, icmp, handshake or dns)", opts.Kind)
	}
}
