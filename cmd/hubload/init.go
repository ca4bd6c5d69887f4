package main

import (
	"github.com/spf13/cobra"

	"github.com/chaz8081/hubload/internal/config"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault()
			if err != nil {
				return wrapCLIError(exitConfig, "Failed to write config", err)
			}
			if path == "" {
				a.out.Info("Config already exists at %s", config.DefaultConfigPath())
				return nil
			}
			a.out.Success("Wrote %s", path)
			return nil
		},
	}
}
