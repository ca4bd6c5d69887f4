package ble

import "errors"

// Transport errors. Operations wrap these with context, so match them with
// errors.Is.
var (
	// ErrDeviceNotFound means discovery finished without a matching hub.
	ErrDeviceNotFound = errors.New("ble: no matching device found")
	// ErrUserCancelled means the caller cancelled during discovery or connect.
	ErrUserCancelled = errors.New("ble: connect cancelled")
	// ErrGattConnectFailed means the GATT connection could not be opened.
	ErrGattConnectFailed = errors.New("ble: GATT connect failed")
	// ErrCharacteristicMissing means the NUS service or one of its
	// characteristics could not be resolved.
	ErrCharacteristicMissing = errors.New("ble: NUS service or characteristic missing")
	// ErrPacketTooLarge means a write exceeded the negotiated packet size.
	ErrPacketTooLarge = errors.New("ble: packet exceeds maximum size")
	// ErrLinkLost means the link dropped before or during the operation.
	ErrLinkLost = errors.New("ble: link lost")
	// ErrTimeout means a connect or write did not complete in time.
	ErrTimeout = errors.New("ble: timed out")
	// ErrNotConnected means the session has no open link.
	ErrNotConnected = errors.New("ble: not connected")
	// ErrSessionClosed means the session already left its initial state.
	// Create a new Session to connect again.
	ErrSessionClosed = errors.New("ble: session closed")
)
