// Package camera performs the capture side effect for a dispatched trigger.
package camera

import (
	"context"
	"fmt"

	"github.com/shuttercam/shuttercam/internal/config"
	"github.com/shuttercam/shuttercam/internal/hw/gpio"
)

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract "camera", regardless of how it's controlled
// (external still program, GPIO remote connector, ...).
type Camera interface {
	// Shoot triggers a single photo capture. It returns the path of the
	// written image, or "" when the image is stored by the camera itself.
	Shoot(ctx context.Context) (string, error)
}

// Closer is implemented by cameras holding hardware resources.
type Closer interface {
	Close() error
}

// New builds the camera selected by cfg.Type. mockGPIO forces the mock GPIO
// driver for gpio_remote cameras.
func New(cfg config.CameraConfig, mockGPIO bool) (Camera, error) {
	switch cfg.Type {
	case "", "rpicam":
		return NewRpicamStill(cfg.OutputDir, cfg.FilenameFormat, cfg.Rpicam)
	case "gpio_remote":
		drv, err := gpio.NewDriver(mockGPIO || cfg.Remote.MockGPIO)
		if err != nil {
			return nil, err
		}
		return NewRemoteRelease(drv, RemoteOptions{
			FocusPin:     cfg.Remote.FocusPin,
			ShutterPin:   cfg.Remote.ShutterPin,
			FocusDelay:   cfg.Remote.FocusDelay(),
			ShutterDelay: cfg.Remote.ShutterDelay(),
		}), nil
	default:
		return nil, fmt.Errorf("%w: unsupported camera.type %q", config.ErrMalformedProfile, cfg.Type)
	}
}
