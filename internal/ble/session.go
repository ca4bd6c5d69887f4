package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/hubload/internal/console"
)

// Status is the coarse connection state of a Session.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// DeviceHandle identifies the hub a session is connected to.
type DeviceHandle struct {
	ID   string
	Name string
}

// State is one point in a session's lifecycle. Device is only set while
// Connected.
type State struct {
	Status Status
	Device DeviceHandle
}

func (s State) String() string {
	if s.Status == StatusConnected {
		return fmt.Sprintf("connected to %s (%s)", s.Device.Name, s.Device.ID)
	}
	return s.Status.String()
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// WriteTimeout bounds a single Write. Zero disables it.
	WriteTimeout time.Duration
	// Backlog is how many packets are held until StartReceiving is called.
	Backlog int
}

// DefaultSessionOptions returns sensible defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		WriteTimeout: 2 * time.Second,
		Backlog:      256,
	}
}

// Session owns one physical link to a hub. Its state only moves forward:
// Disconnected, Connecting, Connected, Disconnected. Once it has left the
// initial state it cannot connect again; create a new Session instead.
//
// Platform callbacks never touch session state. They post to channels
// drained by a per-connection event loop, which is the only place a
// spontaneous disconnect becomes a state transition.
type Session struct {
	adapter Adapter
	opts    SessionOptions

	// mu guards everything below up to writeMu.
	mu        sync.Mutex
	state     State
	started   bool
	closed    bool
	linked    bool // reached Connected at some point
	conn      Connection
	rx        Characteristic
	tx        Characteristic
	maxPacket int

	// writeMu serializes writes on the RX characteristic.
	writeMu sync.Mutex
	// inflight is closed when the last platform write returns, which may
	// be after its Write call timed out. Guarded by writeMu.
	inflight chan struct{}

	states  chan State
	lost    chan struct{}
	packets chan []byte
	drops   chan struct{}
	sinks   chan func(string)
}

// NewSession creates a disconnected session on adapter.
func NewSession(adapter Adapter, opts SessionOptions) *Session {
	if opts.Backlog <= 0 {
		opts.Backlog = 256
	}
	return &Session{
		adapter: adapter,
		opts:    opts,
		// At most three transitions ever happen, so sends never block.
		states:  make(chan State, 4),
		lost:    make(chan struct{}),
		packets: make(chan []byte, 64),
		drops:   make(chan struct{}, 1),
		sinks:   make(chan func(string), 1),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// States returns the stream of state transitions. It is closed after the
// session reaches its terminal Disconnected state.
func (s *Session) States() <-chan State {
	return s.states
}

// Lost is closed when the session reaches its terminal state, whether by
// Disconnect, a failed connect, or a spontaneous link loss.
func (s *Session) Lost() <-chan struct{} {
	return s.lost
}

// MaxPacketSize returns the largest write the link accepts, or 0 when not
// connected.
func (s *Session) MaxPacketSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPacket
}

// Connect discovers a hub matching f, opens the GATT connection, resolves
// the NUS characteristics and subscribes to console notifications.
func (s *Session) Connect(ctx context.Context, f Filter) (DeviceHandle, error) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return DeviceHandle{}, ErrSessionClosed
	}
	s.started = true
	s.setStateLocked(State{Status: StatusConnecting})
	s.mu.Unlock()

	link, err := s.dial(ctx, f)
	if err != nil {
		slog.Warn("[BLE] connect failed", "error", err)
		s.mu.Lock()
		s.closeLocked()
		s.mu.Unlock()
		return DeviceHandle{}, err
	}

	s.mu.Lock()
	if s.closed {
		// Abandoned while dialing (watchdog timeout or Disconnect).
		s.mu.Unlock()
		_ = link.conn.Disconnect()
		return DeviceHandle{}, fmt.Errorf("ble: connect abandoned: %w", ErrSessionClosed)
	}
	select {
	case <-s.drops:
		// The link dropped during discovery, before the loop could see it.
		s.closeLocked()
		s.mu.Unlock()
		_ = link.conn.Disconnect()
		slog.Warn("[BLE] link lost during connect")
		return DeviceHandle{}, fmt.Errorf("ble: connect: %w", ErrLinkLost)
	default:
	}
	s.conn = link.conn
	s.rx = link.rx
	s.tx = link.tx
	s.maxPacket = link.rx.MaxPacketSize()
	s.linked = true
	s.setStateLocked(State{Status: StatusConnected, Device: link.device})
	s.mu.Unlock()

	go s.loop()

	slog.Info("[BLE] connected", "name", link.device.Name, "address", link.device.ID, "max_packet", s.MaxPacketSize())
	return link.device, nil
}

type dialResult struct {
	device DeviceHandle
	conn   Connection
	rx     Characteristic
	tx     Characteristic
}

// dial runs the blocking connect steps. It touches no session state except
// through the packet and drop channels it wires into platform callbacks.
func (s *Session) dial(ctx context.Context, f Filter) (*dialResult, error) {
	if err := s.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w: %w", ErrDeviceNotFound, err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, f.scanTimeout())
	devices, err := s.adapter.Scan(scanCtx, f.serviceUUIDs())
	cancel()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ble: scan: %w: %w", ErrUserCancelled, ctx.Err())
	}
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w: %w", ErrDeviceNotFound, err)
	}
	dev, ok := f.Pick(devices)
	if !ok {
		return nil, fmt.Errorf("%w (scanned %d devices)", ErrDeviceNotFound, len(devices))
	}
	slog.Debug("[BLE] device found", "name", dev.Name, "address", dev.Address, "rssi", dev.RSSI)

	conn, err := s.adapter.Connect(ctx, dev.Address)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ble: connect: %w: %w", ErrUserCancelled, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrGattConnectFailed, err)
	}

	// Register before anything can fail so a drop during discovery is seen.
	conn.OnDisconnect(s.postDrop)

	rx, err := conn.DiscoverCharacteristic(NUSServiceUUID, NUSRXCharUUID)
	if err != nil {
		_ = conn.Disconnect()
		return nil, fmt.Errorf("%w: RX: %w", ErrCharacteristicMissing, err)
	}
	tx, err := conn.DiscoverCharacteristic(NUSServiceUUID, NUSTXCharUUID)
	if err != nil {
		_ = conn.Disconnect()
		return nil, fmt.Errorf("%w: TX: %w", ErrCharacteristicMissing, err)
	}
	if err := tx.Subscribe(s.postPacket); err != nil {
		_ = conn.Disconnect()
		return nil, fmt.Errorf("%w: enable TX notifications: %w", ErrCharacteristicMissing, err)
	}

	name := dev.Name
	if name == "" {
		name = "NUS Device"
	}
	return &dialResult{
		device: DeviceHandle{ID: dev.Address, Name: name},
		conn:   conn,
		rx:     rx,
		tx:     tx,
	}, nil
}

// postPacket is the platform notification callback.
func (s *Session) postPacket(p []byte) {
	select {
	case s.packets <- p:
	case <-s.lost:
	}
}

// postDrop is the platform disconnect callback.
func (s *Session) postDrop() {
	select {
	case s.drops <- struct{}{}:
	default:
	}
}

// StartReceiving routes decoded console text to fn. Packets that arrived
// before the first call are replayed to it. A later call replaces fn.
func (s *Session) StartReceiving(fn func(text string)) {
	select {
	case s.sinks <- fn:
	case <-s.lost:
	}
}

// loop serializes notification packets, receiver changes and the
// spontaneous disconnect signal for one connection.
func (s *Session) loop() {
	var recv *console.Receiver
	var backlog [][]byte

	install := func(fn func(string)) {
		recv = console.NewReceiver(console.SinkFunc(fn))
		for _, p := range backlog {
			recv.OnPacket(p)
		}
		backlog = nil
	}
	deliver := func(p []byte) {
		if recv != nil {
			recv.OnPacket(p)
			return
		}
		if len(backlog) < s.opts.Backlog {
			backlog = append(backlog, p)
		}
	}
	drain := func() {
		select {
		case fn := <-s.sinks:
			install(fn)
		default:
		}
		for {
			select {
			case p := <-s.packets:
				deliver(p)
			default:
				if recv != nil {
					recv.Flush()
				}
				return
			}
		}
	}

	for {
		select {
		case fn := <-s.sinks:
			install(fn)
		case p := <-s.packets:
			deliver(p)
		case <-s.drops:
			drain()
			s.mu.Lock()
			wasOpen := !s.closed
			s.closeLocked()
			s.mu.Unlock()
			if wasOpen {
				slog.Warn("[BLE] link lost")
			}
			return
		case <-s.lost:
			drain()
			return
		}
	}
}

// Write sends one packet on the RX characteristic. It does not chunk:
// packets larger than MaxPacketSize are rejected with ErrPacketTooLarge.
func (s *Session) Write(ctx context.Context, p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	rx, maxPacket, linked := s.rx, s.maxPacket, s.linked
	s.mu.Unlock()

	if rx == nil {
		if linked {
			return ErrLinkLost
		}
		return ErrNotConnected
	}
	if len(p) > maxPacket {
		return fmt.Errorf("%w: %d > %d bytes", ErrPacketTooLarge, len(p), maxPacket)
	}
	if len(p) == 0 {
		return nil
	}

	if s.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.WriteTimeout)
		defer cancel()
	}

	if s.inflight != nil {
		select {
		case <-s.inflight:
			s.inflight = nil
		case <-s.lost:
			return ErrLinkLost
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("ble: previous write still in flight: %w", ErrTimeout)
			}
			return fmt.Errorf("ble: write: %w", ctx.Err())
		}
	}

	done := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		defer close(done)
		errc <- rx.Write(p)
	}()
	s.inflight = done

	select {
	case err := <-errc:
		if err == nil {
			return nil
		}
		select {
		case <-s.lost:
			return fmt.Errorf("%w: %w", ErrLinkLost, err)
		default:
		}
		return fmt.Errorf("ble: write %d bytes: %w", len(p), err)
	case <-s.lost:
		return ErrLinkLost
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ble: write %d bytes: %w", len(p), ErrTimeout)
		}
		return fmt.Errorf("ble: write: %w", ctx.Err())
	}
}

// Disconnect closes the link. It is safe to call at any time and any
// number of times; the session always ends Disconnected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.closeLocked()
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			slog.Warn("[BLE] disconnect", "error", err)
		}
		slog.Info("[BLE] disconnected")
	}
	return nil
}

// closeLocked moves to the terminal state, clearing both handles together.
// Caller must hold mu.
func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.started = true
	s.conn = nil
	s.rx = nil
	s.tx = nil
	s.maxPacket = 0
	s.setStateLocked(State{Status: StatusDisconnected})
	close(s.lost)
	close(s.states)
}

// setStateLocked records st and emits it if it differs from the current
// state. Caller must hold mu.
func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	select {
	case s.states <- st:
	default:
		slog.Warn("[BLE] state event dropped", "state", st)
	}
}
