package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/chaz8081/hubload/internal/ble"
	"github.com/chaz8081/hubload/internal/validate"
)

// ErrBusy is returned when an upload is submitted while another runs.
var ErrBusy = errors.New("upload: another upload is in progress")

// ErrValidation is wrapped by validation failures.
var ErrValidation = errors.New("upload: validation failed")

// Kind classifies an upload or connect failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindDeviceNotFound
	KindUserCancelled
	KindGattConnectFailed
	KindServiceOrCharacteristicMissing
	KindPacketTooLarge
	KindWriteFailed
	KindLinkLost
	KindTimeout
	KindBusy
	KindNotConnected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation error"
	case KindDeviceNotFound:
		return "device not found"
	case KindUserCancelled:
		return "cancelled"
	case KindGattConnectFailed:
		return "GATT connect failed"
	case KindServiceOrCharacteristicMissing:
		return "service or characteristic missing"
	case KindPacketTooLarge:
		return "packet too large"
	case KindWriteFailed:
		return "write failed"
	case KindLinkLost:
		return "link lost"
	case KindTimeout:
		return "timeout"
	case KindBusy:
		return "busy"
	case KindNotConnected:
		return "not connected"
	default:
		return "unknown error"
	}
}

// Error is the structured failure of an upload job.
type Error struct {
	Kind Kind
	// Phase is the phase the job was in when it failed.
	Phase Phase
	// Offset is the number of payload bytes fully written.
	Offset int
	Total  int
	// Report is set for validation failures.
	Report validate.Report
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindValidation {
		return fmt.Sprintf("upload: validation failed: %s", e.Report)
	}
	return fmt.Sprintf("upload: %s during %s at byte %d/%d: %v", e.Kind, e.Phase, e.Offset, e.Total, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf maps any error from this package or internal/ble onto a Kind.
func KindOf(err error) Kind {
	var uerr *Error
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &uerr):
		return uerr.Kind
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ble.ErrLinkLost), errors.Is(err, ble.ErrSessionClosed):
		return KindLinkLost
	case errors.Is(err, ble.ErrPacketTooLarge):
		return KindPacketTooLarge
	case errors.Is(err, ble.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ble.ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, ble.ErrUserCancelled), errors.Is(err, context.Canceled):
		return KindUserCancelled
	case errors.Is(err, ble.ErrDeviceNotFound):
		return KindDeviceNotFound
	case errors.Is(err, ble.ErrGattConnectFailed):
		return KindGattConnectFailed
	case errors.Is(err, ble.ErrCharacteristicMissing):
		return KindServiceOrCharacteristicMissing
	default:
		return KindUnknown
	}
}
