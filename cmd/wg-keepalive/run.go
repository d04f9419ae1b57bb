package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/nyiyui/wgkeepalive/config"
	"github.com/nyiyui/wgkeepalive/control"
	"github.com/nyiyui/wgkeepalive/discover"
	"github.com/nyiyui/wgkeepalive/journal"
	"github.com/nyiyui/wgkeepalive/keepalive"
	"github.com/nyiyui/wgkeepalive/probe"
	"github.com/nyiyui/wgkeepalive/restart"
	"github.com/nyiyui/wgkeepalive/supervisor"
	"github.com/nyiyui/wgkeepalive/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run [name=address ...]",
	Short: "Supervise tunnels until interrupted",
	Run:   runSupervisor,
}

func init() {
	f := runCmd.Flags()
	f.DurationVar(&overrides.interval, "interval", 0, "pause between rounds (overrides interval)")
	f.IntVar(&overrides.threshold, "threshold", 0, "consecutive failures tolerated before a restart (overrides threshold)")
	f.IntVar(&overrides.workers, "workers", 0, "tunnels probed at the same time (overrides workers)")
	f.StringVar(&overrides.policy, "policy", "", "restart policy: every-tick, once or backoff (overrides restart.policy)")
	f.StringVar(&overrides.probe, "probe", "", "probe kind: ping, icmp, handshake or dns (overrides probe.kind)")
	f.StringVar(&overrides.logFile, "log-file", "", "also append logs to this file (overrides log.file)")
}

func runSupervisor(cmd *cobra.Command, args []string) {
	c := loadConfig(cmd)
	err := util.SetupFileLog(util.LogOptions{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	})
	if err != nil {
		zap.S().Fatalf("setting up logging failed: %s", err)
	}
	zap.S().Info("wg-keepalive running.")

	tunnels, err := discover.Resolve(c, args)
	if err != nil {
		zap.S().Fatalf("discovering tunnels failed: %s", err)
	}
	s, err := newSupervisor(c, tunnels)
	if err != nil {
		zap.S().Fatalf("%s", err)
	}

	j, err := journal.Open(c.Journal.Path, c.Journal.History.Std())
	if err != nil {
		zap.S().Fatalf("opening journal failed: %s", err)
	}
	defer func() {
		err := j.Close()
		if err != nil {
			zap.S().Errorf("closing journal failed: %s", err)
		}
	}()
	s.Recorder = j

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Control.Socket != "" {
		lis, err := control.Listen(c.Control.Socket)
		if err != nil {
			zap.S().Errorf("control socket disabled: %s", err)
		} else {
			zap.S().Infof("control socket listening on %s", c.Control.Socket)
			go control.NewServer(j).Serve(ctx, lis)
		}
	}

	notify("READY=1")
	err = s.Run(ctx)
	notify("STOPPING=1")
	if err != nil {
		zap.S().Errorf("supervisor stopped: %s", err)
	}
}

// newSupervisor wires the probe, restarter and evaluator selected by c.
func newSupervisor(c config.Config, tunnels []discover.Tunnel) (*supervisor.Supervisor, error) {
	prober, err := probe.New(probe.Options{
		Kind:           c.Probe.Kind,
		Timeout:        c.Probe.Timeout.Std(),
		Privileged:     c.Probe.Privileged,
		StaleThreshold: c.Probe.StaleThreshold.Std(),
		DNSName:        c.Probe.DNSName,
	})
	if err != nil {
		return nil, err
	}
	restarter, err := restart.New(restart.Options{
		Kind:        c.Restart.Kind,
		Unit:        c.Restart.Unit,
		SettleDelay: c.Restart.SettleDelay.Std(),
		ConfigDir:   c.Restart.ConfigDir,
		Command:     c.Restart.Command,
	})
	if err != nil {
		return nil, err
	}
	policy, err := keepalive.ParsePolicy(c.Restart.Policy)
	if err != nil {
		return nil, err
	}
	states := make([]*keepalive.TunnelState, len(tunnels))
	for i, t := range tunnels {
		states[i] = keepalive.NewTunnelState(t.Name, t.Address)
	}
	return &supervisor.Supervisor{
		States: states,
		Prober: prober,
		Evaluator: &keepalive.Evaluator{
			Threshold:      c.Threshold,
			Policy:         policy,
			RestartTimeout: c.Restart.Timeout.Std(),
			BackoffInitial: c.Restart.BackoffInitial.Std(),
			BackoffMax:     c.Restart.BackoffMax.Std(),
			Restarter:      restarter,
		},
		Interval:        c.Interval.Std(),
		ProbeTimeout:    c.Probe.Timeout.Std(),
		ShutdownTimeout: c.ShutdownTimeout.Std(),
		Workers:         c.Workers,
	}, nil
}

func notify(state string) {
	err := util.Notify(state)
	if err != nil && !errors.Is(err, util.ErrNotifyUnsupported) {
		zap.S().Warnf("notify %s failed: %s", state, err)
	}
}
