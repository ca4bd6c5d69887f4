package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/hubload/internal/upload"
)

func newUploadCmd(a *app) *cobra.Command {
	var (
		name   string
		follow bool
		grace  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "upload [file]",
		Short: "Upload a script to the hub and run it",
		Long: `Upload interrupts the running program, enters paste mode, sends the
script in paced chunks and soft-reboots the hub to run it.

With no file argument the upload.script path from the config is used.
Without --follow, console output is printed for upload.output_grace
after the script starts, then the link is closed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Upload.Script
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return newCLIError(exitUsage, "No script given").
					withHint("Pass a file or set upload.script in the config.")
			}
			payload, err := os.ReadFile(path)
			if err != nil {
				return wrapCLIError(exitGeneral, "Failed to read script", err)
			}
			if name == "" {
				name = a.cfg.Upload.Filename
			}

			if !cmd.Flags().Changed("grace") {
				grace = a.cfg.Upload.OutputGrace.D()
			}

			ctx := cmd.Context()
			prog := newProgress()
			h, err := a.connectHub(ctx, func(e upload.Event) {
				if e.Phase != upload.PhaseTransferring {
					a.out.Muted("%s", e.Phase)
					return
				}
				if pct, ok := prog.step(e.Offset, e.Total); ok {
					a.out.Muted("transferring %d/%d bytes (%d%%)", e.Offset, e.Total, pct)
				}
			})
			if err != nil {
				return err
			}
			defer h.Disconnect()

			output, unsub := h.OutputStream()
			defer unsub()

			res := h.SubmitUpload(ctx, string(payload), name)
			for _, w := range res.Report.Warnings() {
				a.out.Warning("%s", w)
			}
			if !res.OK() {
				return kindError("Upload failed", res.Err)
			}
			a.out.Success("Uploaded %s as %s (%d bytes)", path, name, res.Total)

			if !follow {
				a.drain(ctx, h, output, grace)
				return nil
			}
			a.out.Muted("Following hub output, Ctrl+C to quit")
			return a.follow(ctx, h, output)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "target filename on the hub (default from config)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep streaming hub output after the upload")
	cmd.Flags().DurationVar(&grace, "grace", 0, "print hub output this long before disconnecting (default upload.output_grace)")
	return cmd
}

// progress decides which transfer events get a line: the first, every
// 25% step after it, and the last.
type progress struct {
	last int
}

func newProgress() *progress {
	return &progress{last: -25}
}

func (p *progress) step(offset, total int) (int, bool) {
	pct := percent(offset, total)
	if pct/25 == p.last/25 && offset != total {
		return pct, false
	}
	p.last = pct
	return pct, true
}

func percent(n, total int) int {
	if total <= 0 {
		return 100
	}
	return n * 100 / total
}
