package restart

import (
	"context"
)

// Systemctl restarts a systemd unit by running systemctl restart.
type Systemctl struct {
	Unit string
}

func (r *Systemctl) Restart(ctx context.Context, name string) error {
	return run(ctx, "systemctl", "restart", unitName(r.Unit, name))
}
