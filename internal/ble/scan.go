package ble

import (
	"context"
	"fmt"
)

// ScanForDevices scans for hubs advertising any of the filter's services.
func ScanForDevices(adapter Adapter, f Filter) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.scanTimeout())
	defer cancel()

	devices, err := adapter.Scan(ctx, f.serviceUUIDs())
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	var matched []Device
	for _, d := range devices {
		if f.Match(d) {
			matched = append(matched, d)
		}
	}
	return matched, nil
}
