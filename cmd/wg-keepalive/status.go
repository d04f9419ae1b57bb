package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nyiyui/wgkeepalive/control"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statusOpts struct {
	events int
	json   bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tunnel state and recent events of a running supervisor",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		c := loadConfig(cmd)
		if c.Control.Socket == "" {
			zap.S().Fatal("control socket is disabled in the configuration")
		}
		clt, err := control.Dial(cmd.Context(), c.Control.Socket)
		if err != nil {
			zap.S().Fatalf("connecting to supervisor failed: %s", err)
		}
		defer clt.Close()
		reply, err := clt.Status(statusOpts.events)
		if err != nil {
			zap.S().Fatalf("status failed: %s", err)
		}
		if statusOpts.json {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			err = enc.Encode(reply)
			if err != nil {
				zap.S().Fatalf("encoding status failed: %s", err)
			}
			return
		}
		printStatus(os.Stdout, reply)
	},
}

func init() {
	statusCmd.Flags().IntVarP(&statusOpts.events, "events", "n", control.DefaultEvents, "number of recent events to show")
	statusCmd.Flags().BoolVar(&statusOpts.json, "json", false, "print JSON instead of a table")
}

func printStatus(w io.Writer, reply control.StatusReply) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Tunnel", "Address", "State", "Failures", "Restarts", "Last probe"})
	for _, ts := range reply.Tunnels {
		state := "down"
		if ts.WasReachable {
			state = "up"
		}
		t.AppendRow(table.Row{ts.Name, ts.Address, state, ts.Failures, ts.Restarts, formatTime(ts.LastProbe)})
	}
	t.Render()
	if len(reply.Events) == 0 {
		return
	}
	fmt.Fprintln(w)
	et := table.NewWriter()
	et.SetOutputMirror(w)
	et.SetStyle(table.StyleLight)
	et.AppendHeader(table.Row{"Time", "Event", "Tunnel", "Count", "Error"})
	for _, e := range reply.Events {
		et.AppendRow(table.Row{formatTime(e.Time), e.Kind, e.Tunnel, e.Count, e.Error})
	}
	et.Render()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
