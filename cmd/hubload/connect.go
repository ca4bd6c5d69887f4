package main

import (
	"context"
	"errors"
	"time"

	"github.com/chaz8081/hubload/internal/ble"
	"github.com/chaz8081/hubload/internal/hub"
	"github.com/chaz8081/hubload/internal/upload"
)

// connectHub connects to the configured hub. The caller must Disconnect it.
// observer, if set, receives upload progress.
func (a *app) connectHub(ctx context.Context, observer func(upload.Event)) (*hub.Hub, error) {
	opts := a.cfg.HubOptions()
	opts.Upload.Observer = observer

	h := hub.New(a.newAdapter(), opts)
	a.out.Muted("Searching for hub...")
	dev, err := h.Connect(ctx)
	if err != nil {
		return nil, kindError("Failed to connect", err)
	}
	a.out.Success("Connected to %s (%s)", dev.Name, dev.ID)
	return h, nil
}

// follow prints hub output until ctx is done or the link drops.
func (a *app) follow(ctx context.Context, h *hub.Hub, output <-chan string) error {
	states, unsub := h.States()
	defer unsub()

	if h.State().Status != ble.StatusConnected {
		return kindError("Lost connection to hub", ble.ErrLinkLost)
	}
	for {
		select {
		case text := <-output:
			a.out.Console(text)
		case st := <-states:
			if st.Status == ble.StatusDisconnected {
				return kindError("Lost connection to hub", ble.ErrLinkLost).withHint("")
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}

// drain prints hub output for grace, so the first lines a script prints
// (or its traceback) are not lost to an immediate disconnect. It stops
// early when ctx ends or the link drops.
func (a *app) drain(ctx context.Context, h *hub.Hub, output <-chan string, grace time.Duration) {
	if grace <= 0 {
		return
	}
	graceCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	err := a.follow(graceCtx, h, output)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.out.Warning("Stopped reading hub output: %s", err)
	}
}
