// Package hub is the caller-facing API: one hub at a time, reconnectable,
// with a console history that outlives individual connections.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/hubload/internal/ble"
	"github.com/chaz8081/hubload/internal/ble/protocol"
	"github.com/chaz8081/hubload/internal/console"
	"github.com/chaz8081/hubload/internal/upload"
)

// StopBanner is appended to the output after a stop signal is sent.
const StopBanner = "\n>>> STOP signal sent\n"

// Options configures a Hub.
type Options struct {
	Filter         ble.Filter
	Session        ble.SessionOptions
	Upload         upload.Options
	ConnectTimeout time.Duration
}

// DefaultOptions returns the defaults of every layer.
func DefaultOptions() Options {
	return Options{
		Filter:         ble.DefaultFilter(),
		Session:        ble.DefaultSessionOptions(),
		Upload:         upload.DefaultOptions(),
		ConnectTimeout: ble.DefaultConnectTimeout,
	}
}

// Hub owns the current session, the uploader and the output buffer.
// It is the only place sessions are created.
type Hub struct {
	adapter  ble.Adapter
	opts     Options
	uploader *upload.Uploader
	output   *console.Buffer
	bus      *stateBus

	// connectMu serializes Connect calls.
	connectMu sync.Mutex

	mu      sync.Mutex
	session *ble.Session
	lastErr error
}

// New creates a disconnected Hub on adapter.
func New(adapter ble.Adapter, opts Options) *Hub {
	return &Hub{
		adapter:  adapter,
		opts:     opts,
		uploader: upload.New(opts.Upload),
		output:   console.NewBuffer(),
		bus:      newStateBus(),
	}
}

// Connect connects to a hub matching the configured filter. If a session
// is already connected its device is returned unchanged.
func (h *Hub) Connect(ctx context.Context) (ble.DeviceHandle, error) {
	h.connectMu.Lock()
	defer h.connectMu.Unlock()

	h.mu.Lock()
	if h.session != nil {
		if st := h.session.State(); st.Status == ble.StatusConnected {
			h.mu.Unlock()
			return st.Device, nil
		}
	}
	s := ble.NewSession(h.adapter, h.opts.Session)
	h.session = s
	h.mu.Unlock()

	go h.forward(s)

	dev, err := ble.ConnectWithTimeout(ctx, s, h.opts.Filter, h.opts.ConnectTimeout)
	if err != nil {
		h.setErr(err)
		return ble.DeviceHandle{}, err
	}
	h.setErr(nil)

	h.output.Append(fmt.Sprintf(">>> Connected to %s. TX notifications active.\n", dev.Name))
	s.StartReceiving(h.output.Append)
	slog.Info("[HUB] ready", "name", dev.Name)
	return dev, nil
}

// forward republishes the states of s while it is the current session.
func (h *Hub) forward(s *ble.Session) {
	for st := range s.States() {
		h.mu.Lock()
		current := h.session == s
		h.mu.Unlock()
		if current {
			h.bus.publish(st)
		}
	}
}

// Disconnect closes the current session, if any. It is always safe to call.
func (h *Hub) Disconnect() {
	h.mu.Lock()
	s := h.session
	h.mu.Unlock()
	if s != nil {
		_ = s.Disconnect()
	}
}

// State returns the connection state of the current session.
func (h *Hub) State() ble.State {
	h.mu.Lock()
	s := h.session
	h.mu.Unlock()
	if s == nil {
		return ble.State{Status: ble.StatusDisconnected}
	}
	return s.State()
}

// States subscribes to connection states across reconnects. Call the
// returned function to unsubscribe.
func (h *Hub) States() (<-chan ble.State, func()) {
	return h.bus.subscribe()
}

// LastError returns the most recent connect or upload failure, or nil.
func (h *Hub) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *Hub) setErr(err error) {
	h.mu.Lock()
	h.lastErr = err
	h.mu.Unlock()
}

// connected returns the current session if it is connected.
func (h *Hub) connected() (*ble.Session, error) {
	h.mu.Lock()
	s := h.session
	h.mu.Unlock()
	if s == nil || s.State().Status != ble.StatusConnected {
		return nil, ble.ErrNotConnected
	}
	return s, nil
}

// SubmitUpload validates, uploads and executes payload on the connected hub.
func (h *Hub) SubmitUpload(ctx context.Context, payload, filename string) upload.Result {
	s, err := h.connected()
	if err != nil {
		res := upload.Result{
			Phase: upload.PhaseFailed,
			Total: len(payload),
			Err:   &upload.Error{Kind: upload.KindNotConnected, Phase: upload.PhaseIdle, Total: len(payload), Err: err},
		}
		h.setErr(res.Err)
		return res
	}
	res := h.uploader.Submit(ctx, s, payload, filename)
	if !res.OK() && res.Kind() != upload.KindBusy {
		h.setErr(res.Err)
	}
	return res
}

// Busy reports whether an upload is running.
func (h *Hub) Busy() bool {
	return h.uploader.Busy()
}

// SendRawControl writes b as a standalone one-byte packet.
func (h *Hub) SendRawControl(ctx context.Context, b byte) error {
	s, err := h.connected()
	if err != nil {
		return err
	}
	if err := s.Write(ctx, protocol.Control(b).Packet()); err != nil {
		return fmt.Errorf("hub: send %s: %w", protocol.Control(b), err)
	}
	return nil
}

// Stop interrupts whatever runs on the hub. It does not wait for an
// upload in progress.
func (h *Hub) Stop(ctx context.Context) error {
	if err := h.SendRawControl(ctx, byte(protocol.Interrupt)); err != nil {
		slog.Warn("[HUB] stop failed", "error", err)
		return err
	}
	h.output.Append(StopBanner)
	return nil
}

// SendCommand writes text to the REPL as-is, split to the link's packet size.
func (h *Hub) SendCommand(ctx context.Context, text string) error {
	s, err := h.connected()
	if err != nil {
		return err
	}
	for _, p := range protocol.Chunk([]byte(text), s.MaxPacketSize()) {
		if err := s.Write(ctx, p); err != nil {
			return fmt.Errorf("hub: send command: %w", err)
		}
	}
	return nil
}

// Output returns the accumulated console output.
func (h *Hub) Output() string {
	return h.output.String()
}

// OutputStream subscribes to console output as it arrives.
func (h *Hub) OutputStream() (<-chan string, func()) {
	return h.output.Subscribe()
}

// ClearOutput empties the console history.
func (h *Hub) ClearOutput() {
	h.output.Clear()
}
