package main

import (
	"github.com/spf13/cobra"
)

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Interrupt the program running on the hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.connectHub(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer h.Disconnect()

			if err := h.Stop(cmd.Context()); err != nil {
				return kindError("Failed to send stop signal", err)
			}
			a.out.Success("Stop signal sent")
			return nil
		},
	}
}

func newMonitorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Stream the hub's console output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.connectHub(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer h.Disconnect()

			output, unsub := h.OutputStream()
			defer unsub()

			a.out.Muted("Streaming hub output, Ctrl+C to quit")
			return a.follow(cmd.Context(), h, output)
		},
	}
}
