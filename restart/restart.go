// Package restart restarts the service behind a WireGuard tunnel.
// The implementation is chosen once at startup; see New.
package restart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Restarter restarts the tunnel service identified by name.
// Restart is synchronous and may take several seconds; ctx bounds it.
type Restarter interface {
	Restart(ctx context.Context, name string) error
}

const (
	KindSystemd          = "systemd"
	KindSystemctl        = "systemctl"
	KindWireGuardWindows = "wireguard-windows"
	KindCommand          = "command"
)

type Options struct {
	// Kind selects the implementation. Empty selects DefaultKind.
	Kind string
	// Unit is the systemd unit template, e.g. "wg-quick@%s.service".
	Unit        string
	SettleDelay time.Duration
	ConfigDir   string
	Command     []string
}

// New returns the Restarter selected by opts.Kind.
func New(opts Options) (Restarter, error) {
	kind := opts.Kind
	if kind == "" {
		kind = DefaultKind
	}
	unit := opts.Unit
	if unit == "" {
		unit = "wg-quick@%s.service"
	}
	switch kind {
	case KindSystemd:
		return newSystemd(unit)
	case KindSystemctl:
		return &Systemctl{Unit: unit}, nil
	case KindWireGuardWindows:
		return &WireGuardWindows{ConfigDir: opts.ConfigDir, SettleDelay: opts.SettleDelay}, nil
	case KindCommand:
		if len(opts.Command) == 0 {
			return nil, errors.New("restart kind command needs restart.command to be set")
		}
		return &Command{Argv: opts.Command}, nil
	default:
		return nil, fmt.Errorf("unknown restart kind %q", kind)
	}
}

// unitName fills in the tunnel name in a unit template.
func unitName(template, name string) string {
	if !strings.Contains(template, "%s") {
		return template + name
	}
	return strings.ReplaceAll(template, "%s", name)
}

// run runs argv and folds its output into the error on failure.
func run(ctx context.Context, argv ...string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", argv[0], ctx.Err())
		}
		out = bytes.TrimSpace(out)
		if len(out) == 0 {
			return fmt.Errorf("%s: %w", argv[0], err)
		}
		return fmt.Errorf("%s: %w: %s", argv[0], err, out)
	}
	return nil
}
