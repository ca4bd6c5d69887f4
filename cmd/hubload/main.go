// Package main is the entry point for the hubload CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chaz8081/hubload/internal/ble"
	"github.com/chaz8081/hubload/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout, os.Stderr)
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		return handleError(a.out, err)
	}
	return exitSuccess
}

// app is the state shared by all commands.
type app struct {
	out    *printer
	stderr io.Writer
	cfg    *config.Config

	// newAdapter returns the BLE adapter commands connect through.
	newAdapter func() ble.Adapter
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		out:    newPrinter(stdout, stderr),
		stderr: stderr,
		newAdapter: func() ble.Adapter {
			return ble.NewCoreBluetoothAdapter()
		},
	}
}

// handleError prints err and returns the exit code for it.
func handleError(out *printer, err error) int {
	var cliErr *cliError
	if asCLIError(err, &cliErr) {
		out.Failure("%s", cliErr.Error())
		if cliErr.Hint != "" {
			out.Info("%s", cliErr.Hint)
		}
		return cliErr.Code
	}

	errStr := err.Error()
	if strings.HasPrefix(errStr, "unknown command") ||
		strings.HasPrefix(errStr, "unknown flag") ||
		strings.HasPrefix(errStr, "unknown shorthand flag") ||
		strings.HasPrefix(errStr, "accepts ") ||
		strings.HasPrefix(errStr, "requires ") {
		out.Failure("%s", errStr)
		out.Info("Run 'hubload --help' for usage")
		return exitUsage
	}

	out.Failure("%s", errStr)
	return exitGeneral
}

func newRootCmd(a *app) *cobra.Command {
	var (
		configPath string
		logLevel   string
		noColor    bool
	)

	rootCmd := &cobra.Command{
		Use:   "hubload",
		Short: "Upload Pybricks scripts to a hub over Bluetooth",
		Long: `hubload sends a Pybricks script to a robot hub over the BLE Nordic UART
Service, runs it, and streams the hub's console output back.

Get started:
  hubload init               Write a default config file
  hubload scan               List hubs in range
  hubload upload main.py     Upload and run a script
  hubload stop               Interrupt the running program`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return wrapCLIError(exitConfig, "Failed to load config", err).
					withHint("Run 'hubload init' to write a default config file.")
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return wrapCLIError(exitConfig, "Invalid config", err)
			}

			level, _ := cfg.SlogLevel()
			slog.SetDefault(slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level})))
			a.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/hubload/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return wrapCLIError(exitUsage, "Invalid flag", err).withHint("Run 'hubload --help' for usage")
	})

	rootCmd.AddCommand(
		newScanCmd(a),
		newValidateCmd(a),
		newUploadCmd(a),
		newStopCmd(a),
		newMonitorCmd(a),
		newInitCmd(a),
	)
	return rootCmd
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}
