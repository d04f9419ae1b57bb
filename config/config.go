// Package config loads the wg-keepalive configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the supervisor looks for its configuration when none is given.
const DefaultPath = "/etc/wg-keepalive/config.yaml"

// Config represents the root configuration structure.
type Config struct {
	// Interval is the pause between the end of one tick and the start of the next.
	Interval Duration `yaml:"interval"`
	// Threshold is the number of consecutive failures tolerated before restarting.
	// The restart fires once the count strictly exceeds Threshold.
	Threshold int `yaml:"threshold"`
	// Workers bounds how many tunnels are probed concurrently within a tick.
	Workers int `yaml:"workers"`
	// ShutdownTimeout is how long in-flight probes and restarts may run after a termination signal.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	Probe     Probe     `yaml:"probe"`
	Restart   Restart   `yaml:"restart"`
	Discovery Discovery `yaml:"discovery"`
	Tunnels   []Tunnel  `yaml:"tunnels,omitempty"`
	Log       Log       `yaml:"log"`
	Journal   Journal   `yaml:"journal"`
	Control   Control   `yaml:"control"`
}

type Probe struct {
	// Kind is one of ping, icmp, handshake, dns.
	Kind    string   `yaml:"kind"`
	Timeout Duration `yaml:"timeout"`
	// Privileged selects raw ICMP sockets instead of unprivileged datagram sockets (icmp only).
	Privileged bool `yaml:"privileged,omitempty"`
	// StaleThreshold is the maximum handshake age considered alive (handshake only).
	StaleThreshold Duration `yaml:"stale_threshold"`
	// DNSName is the name queried (dns only).
	DNSName string `yaml:"dns_name"`
}

type Restart struct {
	// Kind is one of systemd, systemctl, wireguard-windows, command. Empty selects the platform default.
	Kind string `yaml:"kind,omitempty"`
	// Policy is one of every-tick, once, backoff.
	Policy  string   `yaml:"policy"`
	Timeout Duration `yaml:"timeout"`
	// Unit is the systemd unit name template; %s is replaced with the tunnel name.
	Unit string `yaml:"unit"`
	// SettleDelay is the pause between tearing down and bringing up a tunnel service (wireguard-windows only).
	SettleDelay Duration `yaml:"settle_delay"`
	// ConfigDir holds <name>.conf.dpapi files (wireguard-windows only).
	ConfigDir string `yaml:"config_dir"`
	// Command is the argv run by the command restarter; "{name}" is replaced with the tunnel name.
	Command []string `yaml:"command,omitempty"`

	BackoffInitial Duration `yaml:"backoff_initial"`
	BackoffMax     Duration `yaml:"backoff_max"`
}

type Discovery struct {
	Dir     string `yaml:"dir"`
	Pattern string `yaml:"pattern"`
}

// Tunnel is a statically configured tunnel.
// Exactly one of Address and Conf must be set.
type Tunnel struct {
	Name string `yaml:"name"`
	// Address is the gateway address probed for this tunnel.
	Address string `yaml:"address,omitempty"`
	// Conf is a wg-quick config file from which the gateway address is derived.
	Conf string `yaml:"conf,omitempty"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

type Journal struct {
	// Path is the buntdb file. ":memory:" keeps the journal in memory.
	Path string `yaml:"path"`
	// History is how long events are retained.
	History Duration `yaml:"history"`
}

type Control struct {
	// Socket is the UNIX socket path for the status endpoint. Empty disables it.
	Socket string `yaml:"socket"`
}

// Default returns the configuration used for any field the file leaves unset.
func Default() Config {
	return Config{
		Interval:        Duration(5 * time.Second),
		Threshold:       3,
		Workers:         1,
		ShutdownTimeout: Duration(10 * time.Second),
		Probe: Probe{
			Kind:           "ping",
			Timeout:        Duration(2 * time.Second),
			StaleThreshold: Duration(3 * time.Minute),
			DNSName:        ".",
		},
		Restart: Restart{
			Policy:         "every-tick",
			Timeout:        Duration(30 * time.Second),
			Unit:           "wg-quick@%s.service",
			SettleDelay:    Duration(3 * time.Second),
			ConfigDir:      `C:\Program Files\WireGuard\Data\Configurations`,
			BackoffInitial: Duration(10 * time.Second),
			BackoffMax:     Duration(5 * time.Minute),
		},
		Discovery: Discovery{
			Dir:     "/etc/wireguard",
			Pattern: "*.conf",
		},
		Log: Log{
			Level: "info",
		},
		Journal: Journal{
			Path:    ":memory:",
			History: Duration(24 * time.Hour),
		},
		Control: Control{
			Socket: "/run/wg-keepalive.sock",
		},
	}
}

// Load reads and parses the YAML configuration file on top of Default.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return c, nil
}

// LoadOrDefault is like Load, but returns Default when path is DefaultPath and the file does not exist.
func LoadOrDefault(path string) (Config, error) {
	c, err := Load(path)
	if err != nil && path == DefaultPath && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return c, err
}

// Validate checks value ranges. Kind and policy names are checked by the packages that use them.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.Threshold < 0 {
		return errors.New("threshold must not be negative")
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	if c.Probe.Timeout <= 0 {
		return errors.New("probe.timeout must be positive")
	}
	if c.Restart.Timeout <= 0 {
		return errors.New("restart.timeout must be positive")
	}
	if c.ShutdownTimeout < 0 {
		return errors.New("shutdown_timeout must not be negative")
	}
	if c.Restart.Policy == "backoff" {
		if c.Restart.BackoffInitial <= 0 {
			return errors.New("restart.backoff_initial must be positive with policy backoff")
		}
		if c.Restart.BackoffMax < c.Restart.BackoffInitial {
			return errors.New("restart.backoff_max must not be less than restart.backoff_initial")
		}
	}
	for i, t := range c.Tunnels {
		if t.Name == "" {
			return fmt.Errorf("tunnels[%d]: name is required", i)
		}
		if (t.Address == "") == (t.Conf == "") {
			return fmt.Errorf("tunnels[%d] (%s): exactly one of address and conf must be set", i, t.Name)
		}
	}
	return nil
}
