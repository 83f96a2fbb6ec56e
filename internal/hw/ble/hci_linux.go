//go:build linux

package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"

	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/event"
)

// HCITransport talks to the local Bluetooth controller through go-ble.
type HCITransport struct {
	dev *linux.Device
}

// NewHCITransport opens the default HCI device.
// Requires CAP_NET_ADMIN/CAP_NET_RAW or root.
func NewHCITransport() (*HCITransport, error) {
	debug.Info("Initializing BLE transport (go-ble, HCI)")
	dev, err := linux.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("open HCI device: %w (is bluetooth up and are capabilities set?)", err)
	}
	return &HCITransport{dev: dev}, nil
}

func (t *HCITransport) Scan(ctx context.Context, handle func(Advertisement)) error {
	err := t.dev.Scan(ctx, true, func(a goble.Advertisement) {
		handle(Advertisement{
			Address: strings.ToUpper(a.Addr().String()),
			Name:    strings.TrimSpace(a.LocalName()),
			RSSI:    a.RSSI(),
		})
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}

func (t *HCITransport) Dial(ctx context.Context, address string) (Conn, error) {
	debug.Trace("HCI dial %s", address)
	cln, err := t.dev.Dial(ctx, goble.NewAddr(strings.ToLower(address)))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return &hciConn{client: cln}, nil
}

func (t *HCITransport) Close() error {
	debug.Trace("HCI transport close")
	return t.dev.Stop()
}

type hciConn struct {
	client goble.Client

	mu      sync.Mutex
	profile *goble.Profile
	closed  bool
}

func (c *hciConn) discover() (*goble.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrNotConnected
	}
	if c.profile != nil {
		return c.profile, nil
	}
	p, err := c.client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	c.profile = p
	return p, nil
}

func (c *hciConn) NotifyCharacteristics() ([]string, error) {
	p, err := c.discover()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, s := range p.Services {
		for _, ch := range s.Characteristics {
			if ch.Property&(goble.CharNotify|goble.CharIndicate) != 0 {
				out = append(out, event.CanonicalUUID(ch.UUID.String()))
			}
		}
	}
	debug.Trace("HCI notify characteristics: %v", out)
	return out, nil
}

func (c *hciConn) Subscribe(characteristic string, h NotificationHandler) error {
	want := event.CanonicalUUID(characteristic)
	p, err := c.discover()
	if err != nil {
		return err
	}
	for _, s := range p.Services {
		for _, ch := range s.Characteristics {
			if !sameCharacteristic(ch.UUID, want) {
				continue
			}
			indicate := ch.Property&goble.CharNotify == 0 && ch.Property&goble.CharIndicate != 0
			if err := c.client.Subscribe(ch, indicate, func(req []byte) { h(req) }); err != nil {
				return fmt.Errorf("subscribe %s: %w", characteristic, err)
			}
			return nil
		}
	}
	return fmt.Errorf("characteristic %s not found on peripheral", characteristic)
}

// sameCharacteristic compares a discovered UUID with a configured one in
// canonical form. go-ble reports SIG characteristics in their 16-bit form.
func sameCharacteristic(discovered goble.UUID, configured string) bool {
	return event.CanonicalUUID(discovered.String()) == event.CanonicalUUID(configured)
}

func (c *hciConn) Disconnected() <-chan struct{} {
	return c.client.Disconnected()
}

func (c *hciConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	debug.Trace("HCI connection close")
	return c.client.CancelConnection()
}
