package camera

import (
	"context"
	"time"

	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/hw/gpio"
)

// RemoteOptions describes the wiring of a camera's remote connector.
type RemoteOptions struct {
	FocusPin     int
	ShutterPin   int
	FocusDelay   time.Duration // time for autofocus
	ShutterDelay time.Duration // shutter hold time
}

// RemoteRelease is a Camera controlled via a 3-pin wired remote connector
// (Nikon, Canon and most DSLRs):
// - GND: connected to Raspberry Pi ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// Trigger sequence:
// 1. FOCUS to LOW (activates autofocus)
// 2. Wait for autofocus to complete
// 3. SHUTTER to LOW (triggers the shot)
// 4. Hold for a moment
// 5. Set SHUTTER and FOCUS back to HIGH
type RemoteRelease struct {
	gpio gpio.Driver
	opts RemoteOptions
}

// NewRemoteRelease configures both lines as outputs, idle HIGH.
func NewRemoteRelease(g gpio.Driver, opts RemoteOptions) *RemoteRelease {
	_ = g.SetupPin(opts.FocusPin, gpio.Output)
	_ = g.SetupPin(opts.ShutterPin, gpio.Output)
	_ = g.WritePin(opts.FocusPin, gpio.High)
	_ = g.WritePin(opts.ShutterPin, gpio.High)
	return &RemoteRelease{gpio: g, opts: opts}
}

// Shoot runs the release sequence. Cancelling ctx during a wait releases
// both lines and returns the context error. The image stays on the camera,
// so the returned path is empty.
func (r *RemoteRelease) Shoot(ctx context.Context) (string, error) {
	debug.Verbose("Camera: remote release (focus=%d, shutter=%d)", r.opts.FocusPin, r.opts.ShutterPin)

	if err := r.gpio.WritePin(r.opts.FocusPin, gpio.Low); err != nil {
		return "", err
	}
	if err := sleep(ctx, r.opts.FocusDelay); err != nil {
		r.release()
		return "", err
	}

	if err := r.gpio.WritePin(r.opts.ShutterPin, gpio.Low); err != nil {
		_ = r.gpio.WritePin(r.opts.FocusPin, gpio.High)
		return "", err
	}
	if err := sleep(ctx, r.opts.ShutterDelay); err != nil {
		r.release()
		return "", err
	}

	if err := r.gpio.WritePin(r.opts.ShutterPin, gpio.High); err != nil {
		return "", err
	}
	if err := r.gpio.WritePin(r.opts.FocusPin, gpio.High); err != nil {
		return "", err
	}
	return "", nil
}

// Close releases the GPIO driver.
func (r *RemoteRelease) Close() error {
	r.release()
	return r.gpio.Close()
}

func (r *RemoteRelease) release() {
	_ = r.gpio.WritePin(r.opts.ShutterPin, gpio.High)
	_ = r.gpio.WritePin(r.opts.FocusPin, gpio.High)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
