package ble_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/hubload/internal/ble"
	"github.com/chaz8081/hubload/internal/ble/bletest"
)

func TestConnectWithTimeoutSuccess(t *testing.T) {
	adapter := bletest.NewAdapter(testHub)
	s := ble.NewSession(adapter, testOpts())

	dev, err := ble.ConnectWithTimeout(context.Background(), s, ble.DefaultFilter(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, testHub.Address, dev.ID)
	assert.Equal(t, ble.StatusConnected, s.State().Status)
}

func TestConnectWithTimeoutPassesThroughErrors(t *testing.T) {
	s := ble.NewSession(bletest.NewAdapter(), testOpts())
	_, err := ble.ConnectWithTimeout(context.Background(), s, ble.DefaultFilter(), time.Second)
	assert.ErrorIs(t, err, ble.ErrDeviceNotFound)
}

func TestConnectWithTimeoutFires(t *testing.T) {
	adapter := bletest.NewAdapter(testHub)
	gate := make(chan struct{})
	adapter.ConnectGate = gate
	adapter.IgnoreCtx = true // platform connect that cannot be cancelled
	s := ble.NewSession(adapter, testOpts())

	start := time.Now()
	_, err := ble.ConnectWithTimeout(context.Background(), s, ble.DefaultFilter(), 30*time.Millisecond)
	require.ErrorIs(t, err, ble.ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "watchdog should return promptly")
	assert.Equal(t, ble.StatusDisconnected, s.State().Status)

	// The dangling platform connect now succeeds; it must be torn down and
	// must not bring the session back.
	close(gate)
	require.Eventually(t, func() bool {
		conn := adapter.Latest()
		return conn != nil && conn.Disconnects() == 1
	}, time.Second, time.Millisecond, "late connection teardown")
	assert.Equal(t, ble.StatusDisconnected, s.State().Status)
}

func TestConnectWithTimeoutDefault(t *testing.T) {
	adapter := bletest.NewAdapter(testHub)
	s := ble.NewSession(adapter, testOpts())
	_, err := ble.ConnectWithTimeout(context.Background(), s, ble.DefaultFilter(), 0)
	require.NoError(t, err)
}
