// Package bletest provides an in-memory ble.Adapter for tests.
package bletest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chaz8081/hubload/internal/ble"
)

// ErrNotConnected is returned by writes after SimulateDisconnect.
var ErrNotConnected = errors.New("mock: not connected")

// Characteristic records writes and allows subscribing.
type Characteristic struct {
	mu        sync.Mutex
	writes    [][]byte
	callback  func([]byte)
	dropped   bool
	MaxPacket int

	// WriteHook, if set, runs before a write is recorded. n counts writes
	// from zero. A non-nil error fails the write without recording it.
	WriteHook func(n int, data []byte) error
	// SubscribeErr fails Subscribe.
	SubscribeErr error
}

func (c *Characteristic) Write(data []byte) error {
	c.mu.Lock()
	n := len(c.writes)
	hook := c.WriteHook
	dropped := c.dropped
	c.mu.Unlock()

	if dropped {
		return ErrNotConnected
	}
	if hook != nil {
		if err := hook(n, data); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *Characteristic) Subscribe(cb func([]byte)) error {
	if c.SubscribeErr != nil {
		return c.SubscribeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
	return nil
}

func (c *Characteristic) MaxPacketSize() int {
	if c.MaxPacket <= 0 {
		return ble.DefaultPacketSize
	}
	return c.MaxPacket
}

// Writes returns a copy of the recorded writes.
func (c *Characteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// SimulateNotification sends a notification to the subscriber.
func (c *Characteristic) SimulateNotification(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

// Connection simulates a BLE connection.
type Connection struct {
	mu           sync.Mutex
	disconnectCb func()
	disconnects  int

	RX        *Characteristic
	TX        *Characteristic
	MissingRX bool
	MissingTX bool
	// OnDiscover, if set, runs at the start of every characteristic lookup.
	OnDiscover func(charUUID string)
}

// NewConnection returns a connection with fresh characteristics.
func NewConnection() *Connection {
	return &Connection{
		RX: &Characteristic{},
		TX: &Characteristic{},
	}
}

func (c *Connection) DiscoverCharacteristic(serviceUUID, charUUID string) (ble.Characteristic, error) {
	if c.OnDiscover != nil {
		c.OnDiscover(charUUID)
	}
	if serviceUUID != ble.NUSServiceUUID {
		return nil, fmt.Errorf("mock: unknown service UUID %q", serviceUUID)
	}
	switch {
	case charUUID == ble.NUSRXCharUUID && !c.MissingRX:
		return c.RX, nil
	case charUUID == ble.NUSTXCharUUID && !c.MissingTX:
		return c.TX, nil
	default:
		return nil, fmt.Errorf("mock: characteristic %q not found", charUUID)
	}
}

func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *Connection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// Disconnects returns how many times Disconnect was called.
func (c *Connection) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// SimulateDisconnect drops the link: later writes fail and the disconnect
// callback fires.
func (c *Connection) SimulateDisconnect() {
	c.RX.mu.Lock()
	c.RX.dropped = true
	c.RX.mu.Unlock()

	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Adapter simulates the BLE adapter.
type Adapter struct {
	mu         sync.Mutex
	devices    []ble.Device
	connection *Connection // most recent connection for test assertions
	scans      [][]string

	EnableErr  error
	ScanErr    error
	ConnectErr error
	// ScanBlocks makes Scan wait for ctx like a real scan.
	ScanBlocks bool
	// ConnectGate, if set, makes Connect wait until it is closed (or ctx
	// is done, unless IgnoreCtx is set).
	ConnectGate chan struct{}
	IgnoreCtx   bool
	// Prepare, if set, customizes each new connection.
	Prepare func(*Connection)
}

// NewAdapter returns an adapter that discovers devices.
func NewAdapter(devices ...ble.Device) *Adapter {
	return &Adapter{devices: devices}
}

func (a *Adapter) Enable() error { return a.EnableErr }

func (a *Adapter) Scan(ctx context.Context, serviceUUIDs []string) ([]ble.Device, error) {
	a.mu.Lock()
	a.scans = append(a.scans, serviceUUIDs)
	a.mu.Unlock()

	if a.ScanBlocks {
		<-ctx.Done()
	}
	if a.ScanErr != nil {
		return nil, a.ScanErr
	}
	return a.devices, nil
}

func (a *Adapter) Connect(ctx context.Context, _ string) (ble.Connection, error) {
	if a.ConnectGate != nil {
		if a.IgnoreCtx {
			<-a.ConnectGate
		} else {
			select {
			case <-a.ConnectGate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if a.ConnectErr != nil {
		return nil, a.ConnectErr
	}

	conn := NewConnection()
	if a.Prepare != nil {
		a.Prepare(conn)
	}
	a.mu.Lock()
	a.connection = conn
	a.mu.Unlock()
	return conn, nil
}

// Latest returns the most recently created connection (thread-safe).
func (a *Adapter) Latest() *Connection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connection
}

// Scans returns the service UUID lists passed to Scan.
func (a *Adapter) Scans() [][]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]string(nil), a.scans...)
}

// Compile-time checks.
var (
	_ ble.Adapter        = (*Adapter)(nil)
	_ ble.Connection     = (*Connection)(nil)
	_ ble.Characteristic = (*Characteristic)(nil)
)
