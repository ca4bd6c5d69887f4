package ble_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/hubload/internal/ble"
	"github.com/chaz8081/hubload/internal/ble/bletest"
)

func TestFilterPick(t *testing.T) {
	devices := []ble.Device{
		{Name: "Pybricks Hub", Address: "AA:AA:AA:AA:AA:01", RSSI: -80},
		{Name: "sumo69", Address: "AA:AA:AA:AA:AA:02", RSSI: -40},
		{Name: "Pybricks Hub", Address: "AA:AA:AA:AA:AA:03", RSSI: -50},
	}

	tests := []struct {
		name     string
		filter   ble.Filter
		wantAddr string
		wantOK   bool
	}{
		{"strongest signal", ble.Filter{}, "AA:AA:AA:AA:AA:02", true},
		{"name prefix", ble.Filter{NamePrefix: "Pybricks"}, "AA:AA:AA:AA:AA:03", true},
		{"address case-insensitive", ble.Filter{Address: "aa:aa:aa:aa:aa:01"}, "AA:AA:AA:AA:AA:01", true},
		{"address and wrong name", ble.Filter{Address: "AA:AA:AA:AA:AA:01", NamePrefix: "sumo"}, "", false},
		{"no match", ble.Filter{NamePrefix: "Technic"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.filter.Pick(devices)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantAddr, got.Address)
		})
	}
}

func TestFilterPickEmpty(t *testing.T) {
	_, ok := ble.DefaultFilter().Pick(nil)
	assert.False(t, ok, "Pick(nil) should not match")
}

func TestScanForDevices(t *testing.T) {
	adapter := bletest.NewAdapter(
		ble.Device{Name: "Pybricks Hub", Address: "AA:BB:CC:DD:EE:FF", RSSI: -45},
		ble.Device{Name: "Other", Address: "11:22:33:44:55:66", RSSI: -60},
	)

	result, err := ble.ScanForDevices(adapter, ble.Filter{NamePrefix: "Pybricks"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", result[0].Address)
}

func TestScanForDevicesEmpty(t *testing.T) {
	result, err := ble.ScanForDevices(bletest.NewAdapter(), ble.DefaultFilter())
	require.NoError(t, err)
	assert.Empty(t, result)
}
