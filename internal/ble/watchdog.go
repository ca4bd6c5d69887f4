package ble

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultConnectTimeout bounds the whole connect sequence.
const DefaultConnectTimeout = 15 * time.Second

// ConnectWithTimeout races s.Connect against a timer. If the timer wins it
// returns ErrTimeout and forces s into its terminal state, so a late
// platform success is torn down rather than resurrecting the session.
//
// The platform scan and connect calls cannot always be cancelled; they may
// keep running until their own internal timeouts expire.
func ConnectWithTimeout(ctx context.Context, s *Session, f Filter, timeout time.Duration) (DeviceHandle, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type connectResult struct {
		device DeviceHandle
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := s.Connect(ctx, f)
		ch <- connectResult{device, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		return result.device, result.err
	case <-timer.C:
		slog.Warn("[BLE] connect timed out, platform discovery may still be running", "timeout", timeout)
		cancel()
		_ = s.Disconnect()
		return DeviceHandle{}, fmt.Errorf("ble: connect after %s: %w", timeout, ErrTimeout)
	}
}
