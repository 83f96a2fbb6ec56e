//go:build !linux

package ble

import (
	"context"
	"errors"
	"runtime"
)

// HCITransport is unavailable on this platform.
type HCITransport struct{}

// NewHCITransport is only available on Linux; use the mock elsewhere.
func NewHCITransport() (*HCITransport, error) {
	return nil, errors.Join(errUnsupported, errors.New("use --mock"))
}

func (*HCITransport) Scan(context.Context, func(Advertisement)) error { return errUnsupported }
func (*HCITransport) Dial(context.Context, string) (Conn, error)      { return nil, errUnsupported }
func (*HCITransport) Close() error                                     { return nil }

var errUnsupported = errors.New("ble: HCI transport is not supported on " + runtime.GOOS)
