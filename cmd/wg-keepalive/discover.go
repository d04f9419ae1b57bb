package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nyiyui/wgkeepalive/discover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var discoverCmd = &cobra.Command{
	Use:   "discover [name=address ...]",
	Short: "List the tunnels run would supervise and the address probed for each",
	Run: func(cmd *cobra.Command, args []string) {
		c := loadConfig(cmd)
		tunnels, err := discover.Resolve(c, args)
		if err != nil {
			zap.S().Fatalf("discovering tunnels failed: %s", err)
		}
		printTunnels(os.Stdout, tunnels)
	},
}

func printTunnels(w io.Writer, tunnels []discover.Tunnel) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Tunnel", "Address", "Source"})
	for _, tun := range tunnels {
		source := tun.Source
		if source == "" {
			source = "-"
		}
		t.AppendRow(table.Row{tun.Name, tun.Address, source})
	}
	t.Render()
}
