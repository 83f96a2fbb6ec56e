package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/event"
	"github.com/shuttercam/shuttercam/internal/logic/directory"
	"github.com/shuttercam/shuttercam/internal/logic/link"
)

// PressPattern is the payload of a manual button press, used to learn which
// characteristic carries button events.
var PressPattern = []byte{0x40, 0x00}

var (
	// ErrNoDevice is returned when a scan finds no matching device.
	ErrNoDevice = errors.New("no matching device found")
	// ErrPressTimeout is returned when no press arrives in time.
	ErrPressTimeout = errors.New("timed out waiting for a shutter press")
)

// SetupOptions configures pairing.
type SetupOptions struct {
	Profile      string
	Name         string // advertised name to look for
	MAC          string // skips scanning when set
	ScanTimeout  time.Duration
	PressTimeout time.Duration
	Verbose      bool
}

// SetupResult is what setup learned and persisted.
type SetupResult struct {
	MAC        string
	NotifyUUID string
}

// Setup finds the button, learns its notify characteristic from a press and
// writes both to the profile, which becomes the default.
func (r *Runner) Setup(ctx context.Context, opts SetupOptions) (*SetupResult, error) {
	if strings.TrimSpace(opts.Profile) == "" {
		return nil, errors.New("profile name is required")
	}
	if opts.Name == "" {
		opts.Name = "BBL_SHUTTER"
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 10 * time.Second
	}
	if opts.PressTimeout <= 0 {
		opts.PressTimeout = 30 * time.Second
	}

	mac := strings.TrimSpace(opts.MAC)
	if mac == "" {
		debug.Info("Scanning for BLE device named %q…", opts.Name)
		hits, err := r.Scan(ctx, opts.Name, opts.ScanTimeout)
		if err != nil {
			return nil, err
		}
		best, ok := directory.Strongest(hits)
		if !ok {
			return nil, fmt.Errorf("%w: %q (try again, increase timeout, or provide --mac)", ErrNoDevice, opts.Name)
		}
		if len(hits) > 1 {
			debug.Warn("%d devices named %q; using the strongest signal", len(hits), opts.Name)
		}
		mac = best.Address
		debug.Info("Found %s @ %s (RSSI %d)", opts.Name, mac, best.RSSI)
	}

	uuid, err := r.learnNotifyUUID(ctx, mac, opts.PressTimeout, opts.Verbose)
	if err != nil {
		return nil, err
	}
	if err := r.Store.UpdateDevice(opts.Profile, mac, uuid); err != nil {
		return nil, err
	}
	debug.Info("Wrote MAC + notify_uuid to profile '%s'", opts.Profile)
	return &SetupResult{MAC: mac, NotifyUUID: uuid}, nil
}

func (r *Runner) learnNotifyUUID(ctx context.Context, mac string, pressTimeout time.Duration, verbose bool) (string, error) {
	debug.Info("Connecting to shutter @ %s (may require waking the device)…", mac)
	mgr := link.NewManager(r.Transport, link.Config{
		SubscribeAll:   true,
		ConnectTimeout: 30 * time.Second,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     2 * time.Second,
	})
	stream, err := mgr.Open(ctx, mac)
	if err != nil {
		return "", err
	}
	defer mgr.Close()

	debug.Info("Learning notify UUID: press the shutter button now (timeout %s)…", pressTimeout)
	timer := time.NewTimer(pressTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
			return "", ErrPressTimeout
		case n, ok := <-stream:
			if !ok {
				return "", ErrPressTimeout
			}
			if verbose {
				debug.Live("[notify:%s] %s", n.Characteristic, n.Hex())
			}
			if bytes.Equal(n.Data, PressPattern) {
				debug.Info("Learned notify UUID: %s", n.Characteristic)
				return event.CanonicalUUID(n.Characteristic), nil
			}
		}
	}
}
