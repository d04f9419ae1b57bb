// Package discover enumerates the tunnels to supervise and the address probed for each.
package discover

import (
	"errors"
	"fmt"
	"net/netip"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nyiyui/wgkeepalive/config"
	"go.uber.org/zap"
	"gopkg.in/ini.v1"
)

// Tunnel is one discovered tunnel.
type Tunnel struct {
	Name    string
	Address netip.Addr
	// Source is the config file the tunnel came from, if any.
	Source string
}

// ErrNoTunnels is returned when discovery found nothing to supervise.
var ErrNoTunnels = errors.New("no tunnels found")

// Resolve picks the tunnel source: command-line name=address pairs if any were given,
// then the tunnels listed in c, and otherwise a scan of c.Discovery.
// The result is never empty and has unique names.
func Resolve(c config.Config, args []string) ([]Tunnel, error) {
	var tunnels []Tunnel
	var err error
	switch {
	case len(args) > 0:
		tunnels, err = Args(args)
	case len(c.Tunnels) > 0:
		tunnels, err = Static(c.Tunnels)
	default:
		tunnels, err = Dir(c.Discovery.Dir, c.Discovery.Pattern)
	}
	if err != nil {
		return nil, err
	}
	if len(tunnels) == 0 {
		return nil, ErrNoTunnels
	}
	seen := map[string]int{}
	for i, t := range tunnels {
		if j, ok := seen[t.Name]; ok {
			return nil, fmt.Errorf("tunnel %d and %d have duplicate name %s", j, i, t.Name)
		}
		seen[t.Name] = i
	}
	return tunnels, nil
}

// Dir reads every wg-quick config in dir matching pattern, in lexical order.
func Dir(dir, pattern string) ([]Tunnel, error) {
	if pattern == "" {
		pattern = "*.conf"
	}
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Strings(paths)
	tunnels := make([]Tunnel, 0, len(paths))
	for _, path := range paths {
		t, err := FromConf(path)
		if err != nil {
			return nil, err
		}
		zap.S().Infof("found config: %s -> %s (%s)", t.Name, t.Address, path)
		tunnels = append(tunnels, t)
	}
	return tunnels, nil
}

// FromConf reads one wg-quick config. The tunnel is named after the file, without its extension.
func FromConf(path string) (Tunnel, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowShadows:            true,
		AllowNonUniqueSections:  true,
		SkipUnrecognizableLines: true,
	}, path)
	if err != nil {
		return Tunnel{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	section, err := f.GetSection("Interface")
	if err != nil {
		return Tunnel{}, fmt.Errorf("%s: no [Interface] section", path)
	}
	if !section.HasKey("Address") {
		return Tunnel{}, fmt.Errorf("%s: no Address in [Interface] section", path)
	}
	values := section.Key("Address").ValueWithShadows()
	gw, err := GatewayFromAddress(values[0])
	if err != nil {
		return Tunnel{}, fmt.Errorf("%s: %w", path, err)
	}
	base := filepath.Base(path)
	return Tunnel{
		Name:    strings.TrimSuffix(base, filepath.Ext(base)),
		Address: gw,
		Source:  path,
	}, nil
}

// Args parses name=address pairs as given on the command line.
func Args(args []string) ([]Tunnel, error) {
	tunnels := make([]Tunnel, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("argument %q: want name=address", arg)
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", arg, err)
		}
		zap.S().Infof("config from argument: %s -> %s", name, addr)
		tunnels = append(tunnels, Tunnel{Name: name, Address: addr})
	}
	return tunnels, nil
}

// Static converts the tunnels listed in the configuration file.
func Static(ts []config.Tunnel) ([]Tunnel, error) {
	tunnels := make([]Tunnel, 0, len(ts))
	for _, ct := range ts {
		if ct.Conf != "" {
			t, err := FromConf(ct.Conf)
			if err != nil {
				return nil, err
			}
			t.Name = ct.Name
			tunnels = append(tunnels, t)
			continue
		}
		addr, err := netip.ParseAddr(ct.Address)
		if err != nil {
			return nil, fmt.Errorf("tunnel %s: %w", ct.Name, err)
		}
		tunnels = append(tunnels, Tunnel{Name: ct.Name, Address: addr})
	}
	return tunnels, nil
}
