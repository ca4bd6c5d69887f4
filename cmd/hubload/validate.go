package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaz8081/hubload/internal/ble/protocol"
	"github.com/chaz8081/hubload/internal/validate"
)

func newValidateCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a script without connecting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return wrapCLIError(exitGeneral, "Failed to read script", err)
			}
			if name == "" {
				name = a.cfg.Upload.Filename
			}

			policy := validate.Policy{AllowTabs: a.cfg.Validation.AllowTabs}
			report := policy.ValidateScript(name, string(payload))
			for _, w := range report.Warnings() {
				a.out.Warning("%s", w)
			}
			if !report.Valid() {
				for _, e := range report.Errors() {
					a.out.Failure("%s", e)
				}
				return newCLIError(exitValidation, fmt.Sprintf("%s is not a valid Pybricks script", args[0]))
			}

			a.out.Success("%s is valid (%d bytes, %d chunks)", args[0], len(payload),
				protocol.ChunkCount(len(payload), a.cfg.Timing.ChunkSize))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "target filename on the hub (default from config)")
	return cmd
}
