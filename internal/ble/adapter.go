// Package ble provides the BLE transport for a Pybricks hub speaking the
// Nordic UART Service. It handles discovery, connection management, the
// write and notify characteristics, and link-loss detection.
package ble

import "context"

// Pybricks hub BLE UUIDs
const (
	// NUSServiceUUID hosts the two data characteristics.
	NUSServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	// NUSRXCharUUID is written by the central (host to hub).
	NUSRXCharUUID = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	// NUSTXCharUUID notifies the central (hub to host).
	NUSTXCharUUID = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
	// PybricksServiceUUID is advertised by Pybricks firmware. It is only
	// used to recognize hubs during discovery.
	PybricksServiceUUID = "c5f50001-8280-46da-89f4-6d8051e4aeef"
)

// DefaultPacketSize is the ATT payload of the minimum 23-byte MTU.
const DefaultPacketSize = 20

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
	// MaxPacketSize returns the largest write the link accepts.
	MaxPacketSize() int
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals advertising any of the given service
	// UUIDs. Returns discovered devices until ctx is cancelled or timeout.
	Scan(ctx context.Context, serviceUUIDs []string) ([]Device, error)
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
