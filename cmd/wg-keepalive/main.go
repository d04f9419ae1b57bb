package main

import (
	"context"
	"os"
	"time"

	"github.com/nyiyui/wgkeepalive/config"
	"github.com/nyiyui/wgkeepalive/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

// overrides holds command-line values that take precedence over the config file when their flag is set.
var overrides struct {
	interval  time.Duration
	threshold int
	workers   int
	policy    string
	probe     string
	logFile   string
	logLevel  string
	socket    string
}

var rootCmd = &cobra.Command{
	Use:   "wg-keepalive",
	Short: "Restart WireGuard tunnels whose gateway stops answering.",
	Long: `wg-keepalive probes the gateway of each WireGuard tunnel at a fixed interval
and restarts the tunnel service after too many consecutive failed probes.

Tunnels are taken from name=address arguments, from the tunnels list in the
config file, or from the wg-quick configs in /etc/wireguard, in that order.
`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", config.DefaultPath, "path to config file")
	pf.StringVar(&overrides.socket, "socket", "", "control socket path (overrides control.socket)")
	pf.StringVar(&overrides.logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(runCmd, statusCmd, discoverCmd)
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) config.Config {
	c, err := config.LoadOrDefault(configPath)
	if err != nil {
		zap.S().Fatalf("loading config failed: %s", err)
	}
	flags := cmd.Flags()
	if flags.Changed("interval") {
		c.Interval = config.Duration(overrides.interval)
	}
	if flags.Changed("threshold") {
		c.Threshold = overrides.threshold
	}
	if flags.Changed("workers") {
		c.Workers = overrides.workers
	}
	if flags.Changed("policy") {
		c.Restart.Policy = overrides.policy
	}
	if flags.Changed("probe") {
		c.Probe.Kind = overrides.probe
	}
	if flags.Changed("log-file") {
		c.Log.File = overrides.logFile
	}
	if flags.Changed("log-level") {
		c.Log.Level = overrides.logLevel
	}
	if flags.Changed("socket") {
		c.Control.Socket = overrides.socket
	}
	err = c.Validate()
	if err != nil {
		zap.S().Fatalf("invalid configuration: %s", err)
	}
	return c
}

func main() {
	util.SetupLog()
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		os.Exit(1)
	}
}
