// Package ble abstracts the BLE central-role stack used to reach the shutter
// button. The rest of the application only sees Transport and Conn, so a real
// HCI implementation or a mock can be plugged in.
package ble

import (
	"context"
	"errors"

	"github.com/shuttercam/shuttercam/internal/debug"
)

// ErrNotConnected is returned by operations on a released connection.
var ErrNotConnected = errors.New("ble: not connected")

// Advertisement is one scan result.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int
}

// NotificationHandler receives a notification payload. It is called from
// the transport's goroutine; the slice must not be retained.
type NotificationHandler func(data []byte)

// Transport opens connections to peripherals.
type Transport interface {
	// Scan reports advertisements until ctx is done. Returning because the
	// context expired is not an error.
	Scan(ctx context.Context, handle func(Advertisement)) error
	// Dial connects to the peripheral at address.
	Dial(ctx context.Context, address string) (Conn, error)
	// Close releases the host controller.
	Close() error
}

// Conn is one live connection to a peripheral.
type Conn interface {
	// NotifyCharacteristics lists characteristics that support notify or
	// indicate.
	NotifyCharacteristics() ([]string, error)
	// Subscribe enables notifications on characteristic.
	Subscribe(characteristic string, h NotificationHandler) error
	// Disconnected is closed when the link drops or Close is called.
	Disconnected() <-chan struct{}
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// NewTransport creates a transport based on the chosen mode.
// If mock is true, returns a MockTransport (for dev/test).
// If mock is false, returns the HCI transport (Linux).
func NewTransport(mock bool) (Transport, error) {
	if mock {
		debug.Info("Using MOCK BLE transport (development mode)")
		return NewMockTransport(), nil
	}
	t, err := NewHCITransport()
	if err != nil {
		return nil, err
	}
	return t, nil
}
