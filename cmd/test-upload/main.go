// Command test-upload is a manual hardware test for the upload path.
// It connects to the first Pybricks hub in range, uploads a script that
// blinks the hub light five times, and prints the console output.
//
// Usage:
//
//	go run ./cmd/test-upload [--name-prefix Pybricks] [--listen 8s]
package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/chaz8081/hubload/internal/ble"
	"github.com/chaz8081/hubload/internal/hub"
	"github.com/chaz8081/hubload/internal/upload"
)

//go:embed blink.py
var blinkScript string

func main() {
	os.Exit(run())
}

func run() int {
	namePrefix := flag.String("name-prefix", "", "only connect to hubs whose name starts with this")
	listen := flag.Duration("listen", 8*time.Second, "how long to print hub output after the upload")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := hub.DefaultOptions()
	opts.Filter.NamePrefix = *namePrefix
	opts.Upload.Observer = func(e upload.Event) {
		if e.Phase != upload.PhaseTransferring || e.Offset == e.Total {
			fmt.Printf("  %-18s %d/%d\n", e.Phase, e.Offset, e.Total)
		}
	}
	h := hub.New(ble.NewCoreBluetoothAdapter(), opts)

	output, unsub := h.OutputStream()
	defer unsub()

	fmt.Println("Connecting (make sure the hub is on and running Pybricks)...")
	dev, err := h.Connect(ctx)
	if err != nil {
		fmt.Printf("Connect failed: %v\n", err)
		return 1
	}
	defer h.Disconnect()
	fmt.Printf("Connected to %s (%s)\n", dev.Name, dev.ID)

	fmt.Printf("Uploading %d bytes...\n", len(blinkScript))
	res := h.SubmitUpload(ctx, blinkScript, upload.DefaultFilename)
	if !res.OK() {
		fmt.Printf("Upload failed: %v\n", res.Err)
		return 1
	}
	fmt.Println("Upload complete. Watch the hub light blink green.")
	fmt.Println(strings.Repeat("-", 40))

	timer := time.NewTimer(*listen)
	defer timer.Stop()
	for {
		select {
		case text := <-output:
			fmt.Print(text)
		case <-timer.C:
			fmt.Println(strings.Repeat("-", 40))
			fmt.Println("Done!")
			return 0
		case <-ctx.Done():
			return 0
		}
	}
}
