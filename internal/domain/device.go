package domain

import "strings"

// ConnectivityClass describes the current network link
type ConnectivityClass string

// Connectivity classes
const (
	ConnectivityNone     ConnectivityClass = "none"
	ConnectivityCellular ConnectivityClass = "cellular"
	ConnectivityWiFi     ConnectivityClass = "wifi"
	ConnectivityEthernet ConnectivityClass = "ethernet"
	ConnectivityUnknown  ConnectivityClass = "unknown"
)

// ParseConnectivity converts a provider string into a ConnectivityClass.
// Unrecognized values map to ConnectivityUnknown, which counts as online.
func ParseConnectivity(s string) ConnectivityClass {
	switch c := ConnectivityClass(strings.ToLower(strings.TrimSpace(s))); c {
	case ConnectivityNone, ConnectivityCellular, ConnectivityWiFi, ConnectivityEthernet:
		return c
	case "offline":
		return ConnectivityNone
	case "mobile":
		return ConnectivityCellular
	default:
		return ConnectivityUnknown
	}
}

// IsOnline returns true unless the link is known to be absent
func (c ConnectivityClass) IsOnline() bool {
	return c != ConnectivityNone
}

// IsMetered returns true for links that usually bill by volume
func (c ConnectivityClass) IsMetered() bool {
	return c == ConnectivityCellular
}

// DeviceState is the ephemeral connectivity and power snapshot
type DeviceState struct {
	Connectivity   ConnectivityClass `json:"connectivity"`
	BatteryPercent int               `json:"battery_percent"`
	IsCharging     bool              `json:"charging"`
}

// UnknownDeviceState is used when no platform signal is available
func UnknownDeviceState() DeviceState {
	return DeviceState{
		Connectivity:   ConnectivityUnknown,
		BatteryPercent: 100,
		IsCharging:     true,
	}
}
