// Package session wires the engine together for each CLI entry point:
// trigger (run), discovery (debug), setup and scan.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/shuttercam/shuttercam/internal/config"
	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/event"
	"github.com/shuttercam/shuttercam/internal/hw/ble"
	"github.com/shuttercam/shuttercam/internal/hw/camera"
	"github.com/shuttercam/shuttercam/internal/logic/catalog"
	"github.com/shuttercam/shuttercam/internal/logic/directory"
	"github.com/shuttercam/shuttercam/internal/logic/dispatch"
	"github.com/shuttercam/shuttercam/internal/logic/link"
)

// CameraFactory builds the capture collaborator for a profile.
type CameraFactory func(cfg config.CameraConfig) (dispatch.Camera, error)

// Runner holds the collaborators shared by every session.
type Runner struct {
	Store     *config.Store
	Transport ble.Transport
	// Sink receives session activities (web stream, MQTT). Optional.
	Sink event.Sink
	// Out receives human-readable discovery output. Defaults to stdout.
	Out io.Writer
	// NewCamera defaults to camera.New with the real GPIO driver.
	NewCamera CameraFactory
}

// NewRunner returns a runner with default camera construction.
func NewRunner(store *config.Store, t ble.Transport) *Runner {
	return &Runner{Store: store, Transport: t}
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return os.Stdout
	}
	return r.Out
}

func (r *Runner) camera(cfg config.CameraConfig) (dispatch.Camera, error) {
	if r.NewCamera != nil {
		return r.NewCamera(cfg)
	}
	return camera.New(cfg, false)
}

// Scan lists nearby devices, optionally filtered by exact name.
func (r *Runner) Scan(ctx context.Context, name string, timeout time.Duration) ([]event.Peripheral, error) {
	return directory.Scan(ctx, r.Transport, name, timeout)
}

// loadProfile resolves, validates and classifies a profile.
func (r *Runner) loadProfile(name string, validate bool) (*config.Profile, *catalog.Catalog, error) {
	p, err := r.Store.Profile(name)
	if err != nil {
		return nil, nil, err
	}
	if validate {
		if err := p.Validate(); err != nil {
			return nil, nil, err
		}
	}
	defs, err := p.Definitions()
	if err != nil {
		return nil, nil, err
	}
	cat, err := catalog.New(defs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", config.ErrMalformedProfile, err)
	}
	return p, cat, nil
}

func (r *Runner) linkConfig(p *config.Profile, reconnect time.Duration) link.Config {
	if reconnect <= 0 {
		reconnect = p.ReconnectDelay()
	}
	maxBackoff := p.MaxReconnectDelay()
	if maxBackoff < reconnect {
		maxBackoff = reconnect
	}
	return link.Config{
		Characteristic: p.Device.NotifyUUID,
		ConnectTimeout: p.ConnectTimeout(),
		InitialBackoff: reconnect,
		MaxBackoff:     maxBackoff,
		IdleTimeout:    p.IdleTimeout(),
	}
}

// publisher stamps activities with the session identity.
type publisher struct {
	sink    event.Sink
	session string
	profile string
}

func newPublisher(sink event.Sink, profile string) *publisher {
	return &publisher{sink: sink, session: uuid.NewString(), profile: profile}
}

func (p *publisher) Publish(a event.Activity) {
	if p.sink == nil {
		return
	}
	if a.Time.IsZero() {
		a.Time = time.Now()
	}
	a.Session = p.session
	a.Profile = p.profile
	p.sink.Publish(a)
}

func (p *publisher) state(s link.State) {
	if s == link.Degraded {
		debug.Warn("Disconnected; will reconnect")
	}
	p.Publish(event.Activity{Kind: event.KindState, Outcome: s.String()})
}

// IsUsageError reports errors caused by configuration rather than the
// device, so callers can exit with a distinct status.
func IsUsageError(err error) bool {
	return errors.Is(err, config.ErrMalformedProfile) || errors.Is(err, config.ErrProfileNotFound)
}
