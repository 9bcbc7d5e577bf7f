// Package ble holds the identifiers and shared state used by both greenhouse
// session roles.
package ble

import "smart-greenhouse/internal/ble/transport"

// ProfileGreenhouse is the application profile of the greenhouse service.
const ProfileGreenhouse transport.AppID = 0

const (
	ServiceUUID transport.UUID16 = 0x00FF
	CharUUID    transport.UUID16 = 0xFF01
	// CCCDUUID is the client characteristic configuration descriptor.
	CCCDUUID transport.UUID16 = 0x2902
)

const (
	DefaultDeviceName = "Greenhouse"
	DefaultLocalMTU   = 500

	// ServiceNumHandles covers the service declaration, characteristic
	// declaration, characteristic value and CCCD.
	ServiceNumHandles = 4
)
