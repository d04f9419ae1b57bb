package discover

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// Gateway returns the first usable address of prefix, i.e. its network address + 1.
//
// Point-to-point prefixes (/31, /32, /127, /128) have no room for a gateway; for those the
// enclosing /24 (IPv4) or /64 (IPv6) is used instead, which is how wg-quick
// configs written as "10.0.0.2/32" are commonly laid out.
func Gateway(prefix netip.Prefix) (netip.Addr, error) {
	if !prefix.IsValid() {
		return netip.Addr{}, errors.New("invalid prefix")
	}
	addr := prefix.Addr().Unmap()
	bits := prefix.Bits()
	if addr.Is4() && bits > 30 {
		bits = 24
	} else if addr.Is6() && bits > 126 {
		bits = 64
	}
	network, err := addr.Prefix(bits)
	if err != nil {
		return netip.Addr{}, err
	}
	gw := network.Addr().Next()
	if !gw.IsValid() || !network.Contains(gw) {
		return netip.Addr{}, fmt.Errorf("%s has no usable address", network)
	}
	return gw, nil
}

// GatewayFromAddress derives the gateway from the value of an [Interface] Address key.
// Only the first entry of a comma-separated list is used. A bare address is treated as a host prefix.
func GatewayFromAddress(value string) (netip.Addr, error) {
	first, _, _ := strings.Cut(value, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return netip.Addr{}, errors.New("empty Address")
	}
	var prefix netip.Prefix
	var err error
	if strings.Contains(first, "/") {
		prefix, err = netip.ParsePrefix(first)
	} else {
		var addr netip.Addr
		addr, err = netip.ParseAddr(first)
		if err == nil {
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
	}
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parsing Address %q: %w", first, err)
	}
	return Gateway(prefix)
}
