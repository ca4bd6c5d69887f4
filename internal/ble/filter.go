package ble

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// DefaultScanTimeout bounds the discovery phase of Connect.
const DefaultScanTimeout = 5 * time.Second

// Filter selects which advertising hub to connect to.
type Filter struct {
	// ServiceUUIDs are matched against advertisements; any one suffices.
	ServiceUUIDs []string
	// NamePrefix, if set, must prefix the advertised local name.
	NamePrefix string
	// Address, if set, must equal the device address (case-insensitive).
	Address string
	// ScanTimeout bounds discovery. Zero means DefaultScanTimeout.
	ScanTimeout time.Duration
}

// DefaultFilter matches hubs advertising either the Pybricks service or
// the NUS service directly.
func DefaultFilter() Filter {
	return Filter{
		ServiceUUIDs: []string{PybricksServiceUUID, NUSServiceUUID},
		ScanTimeout:  DefaultScanTimeout,
	}
}

// Match reports whether d passes the name and address constraints.
func (f Filter) Match(d Device) bool {
	if f.Address != "" && !strings.EqualFold(f.Address, d.Address) {
		return false
	}
	if f.NamePrefix != "" && !strings.HasPrefix(d.Name, f.NamePrefix) {
		return false
	}
	return true
}

// Pick returns the matching device with the strongest signal.
func (f Filter) Pick(devices []Device) (Device, bool) {
	var matches []Device
	for _, d := range devices {
		if f.Match(d) {
			matches = append(matches, d)
		}
	}
	if len(matches) == 0 {
		return Device{}, false
	}
	best := slices.MaxFunc(matches, func(a, b Device) int {
		return cmp.Compare(a.RSSI, b.RSSI)
	})
	return best, true
}

func (f Filter) scanTimeout() time.Duration {
	if f.ScanTimeout <= 0 {
		return DefaultScanTimeout
	}
	return f.ScanTimeout
}

func (f Filter) serviceUUIDs() []string {
	if len(f.ServiceUUIDs) == 0 {
		return DefaultFilter().ServiceUUIDs
	}
	return f.ServiceUUIDs
}
