package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// DefaultStaleThreshold is how old a handshake may be before a peer is considered gone.
// WireGuard rekeys every two minutes on an active tunnel.
const DefaultStaleThreshold = 3 * time.Minute

// Handshake reports a tunnel reachable when any of its WireGuard peers completed a handshake recently.
// It reads the interface named by Target.Name; Target.Address is not used.
type Handshake struct {
	StaleThreshold time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func (p *Handshake) Probe(ctx context.Context, t Target) (bool, error) {
	client, err := wgctrl.New()
	if err != nil {
		return false, fmt.Errorf("wgctrl: %w", err)
	}
	defer client.Close()
	device, err := client.Device(t.Name)
	if errors.Is(err, os.ErrNotExist) {
		// the interface is down
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("wgctrl device %s: %w", t.Name, err)
	}
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}
	threshold := p.StaleThreshold
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	return anyPeerFresh(device.Peers, now, threshold), nil
}

// anyPeerFresh returns true if a peer's last handshake is within threshold of now.
// A handshake time of zero (never completed) is always stale, and a device without peers has nothing fresh.
func anyPeerFresh(peers []wgtypes.Peer, now time.Time, threshold time.Duration) bool {
	for _, peer := range peers {
		if peer.LastHandshakeTime.IsZero() || peer.LastHandshakeTime.Unix() == 0 {
			continue
		}
		if now.Sub(peer.LastHandshakeTime) <= threshold {
			return true
		}
	}
	return false
}
