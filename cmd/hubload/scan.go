package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chaz8081/hubload/internal/ble"
)

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List hubs in range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := a.cfg.Filter()
			a.out.Muted("Scanning for %s...", f.ScanTimeout)
			devices, err := ble.ScanForDevices(a.newAdapter(), f)
			if err != nil {
				return wrapCLIError(exitConnect, "Scan failed", err).
					withHint("Check that Bluetooth is on and this terminal may use it.")
			}
			if len(devices) == 0 {
				return newCLIError(exitNotFound, "No hubs found").
					withHint("Make sure the hub is on, running Pybricks, and not connected to another app.")
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI")
			for _, d := range devices {
				name := d.Name
				if name == "" {
					name = "(unnamed)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\n", name, d.Address, d.RSSI)
			}
			return tw.Flush()
		},
	}
}
