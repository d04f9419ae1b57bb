//go:build linux

package restart

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Systemd restarts a systemd unit through the system bus.
type Systemd struct {
	Unit string
}

func newSystemd(unit string) (Restarter, error) {
	return &Systemd{Unit: unit}, nil
}

func (r *Systemd) Restart(ctx context.Context, name string) error {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("connecting to systemd: %w", err)
	}
	defer conn.Close()
	unit := unitName(r.Unit, name)
	done := make(chan string, 1)
	_, err = conn.RestartUnitContext(ctx, unit, "replace", done)
	if err != nil {
		return fmt.Errorf("restart %s: %w", unit, err)
	}
	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("restart %s: job %s", unit, result)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("restart %s: %w", unit, ctx.Err())
	}
}
