package restart

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// WireGuardWindows reinstalls the tunnel service of WireGuard for Windows.
// There is no restart verb, so the service is uninstalled, and after SettleDelay installed again from its encrypted config.
type WireGuardWindows struct {
	// Executable defaults to "wireguard".
	Executable string
	// ConfigDir holds <name>.conf.dpapi.
	ConfigDir   string
	SettleDelay time.Duration
}

func (r *WireGuardWindows) Restart(ctx context.Context, name string) error {
	exe := r.Executable
	if exe == "" {
		exe = "wireguard"
	}
	// The service may already be gone, so an uninstall failure is not fatal.
	uninstallErr := run(ctx, exe, "/uninstalltunnelservice", name)
	if uninstallErr != nil {
		zap.S().Warnf("%s: uninstalling tunnel service failed, installing anyway: %s", name, uninstallErr)
	}

	timer := time.NewTimer(r.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return multierr.Append(uninstallErr, fmt.Errorf("waiting to reinstall %s: %w", name, ctx.Err()))
	}

	conf := filepath.Join(r.ConfigDir, name+".conf.dpapi")
	err := run(ctx, exe, "/installtunnelservice", conf)
	if err != nil {
		return multierr.Append(uninstallErr, fmt.Errorf("install tunnel service: %w", err))
	}
	return nil
}
