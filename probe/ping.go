package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

// PingCommand probes with the system ping command, sending a single echo request.
// The command used is: ping -c 1 -W <secs> -- <addr> (ping -n 1 -w <ms> <addr> on Windows).
type PingCommand struct {
	Timeout time.Duration
	// Command defaults to "ping".
	Command string
	// GOOS defaults to runtime.GOOS.
	GOOS string
}

func (p *PingCommand) goos() string {
	if p.GOOS == "" {
		return runtime.GOOS
	}
	return p.GOOS
}

func (p *PingCommand) args(t Target) []string {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	addr := t.Address.Unmap().String()
	if p.goos() == "windows" {
		return []string{"-n", "1", "-w", strconv.FormatInt(timeout.Milliseconds(), 10), addr}
	}
	// NOTE: older iputils only accept whole seconds for -W
	secs := int64((timeout + time.Second - 1) / time.Second)
	return []string{"-c", "1", "-W", strconv.FormatInt(secs, 10), "--", addr}
}

func (p *PingCommand) Probe(ctx context.Context, t Target) (bool, error) {
	command := p.Command
	if command == "" {
		command = "ping"
	}
	cmd := exec.CommandContext(ctx, command, p.args(t)...)
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if err == nil {
		if p.goos() == "windows" && !bytes.Contains(bytes.ToUpper(out), []byte("TTL=")) {
			// Windows exits 0 for "Destination host unreachable" replies from a router.
			return false, nil
		}
		return true, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// ping was still waiting for a reply when the deadline ran out
		return false, nil
	}
	if ctx.Err() != nil {
		return false, fmt.Errorf("ping %s: %w", t.Address, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		// exit status 1: no reply received
		return false, nil
	}
	return false, fmt.Errorf("ping %s: %w: %s", t.Address, err, bytes.TrimSpace(out))
}
