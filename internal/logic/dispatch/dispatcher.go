// Package dispatch decides which classified notifications fire a capture
// and runs the camera for them.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/event"
	"github.com/shuttercam/shuttercam/internal/metrics"
)

// ErrBusy is returned by Trigger while a capture is running.
var ErrBusy = errors.New("capture already in progress")

// Camera performs a capture and returns the written file, if any.
type Camera interface {
	Shoot(ctx context.Context) (string, error)
}

// Classifier resolves a notification to its definition.
type Classifier interface {
	Classify(n event.Notification) (event.Definition, bool)
}

// UnknownRecorder collects notifications without a definition.
type UnknownRecorder interface {
	Add(n event.Notification)
}

// Config tunes a Dispatcher.
type Config struct {
	MinInterval   time.Duration
	DryRun        bool
	ShutdownGrace time.Duration
	// Verbose logs every payload.
	Verbose bool

	Session string
	Profile string
	Sink    event.Sink
	Unknown UnknownRecorder
}

// Stats summarises a run.
type Stats struct {
	Notifications int
	Outcomes      map[Outcome]int
	Captured      int
	Failed        int
}

// Dispatcher owns the debounce clock and the capture-in-flight flag.
// Decide must be called from a single goroutine.
type Dispatcher struct {
	cfg    Config
	camera Camera

	last    time.Time
	hasLast bool

	inFlight atomic.Bool
	wg       sync.WaitGroup

	mu    sync.Mutex
	stats Stats
	abort context.CancelFunc
}

// New returns a dispatcher. camera may be nil in dry-run mode.
func New(camera Camera, cfg Config) *Dispatcher {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	return &Dispatcher{
		cfg:    cfg,
		camera: camera,
		stats:  Stats{Outcomes: make(map[Outcome]int)},
	}
}

// Busy reports whether a capture is running.
func (d *Dispatcher) Busy() bool { return d.inFlight.Load() }

// Decide applies the trigger rules in order: unknown, capture disabled,
// debounce, busy. A Dispatched decision advances the debounce clock to the
// notification time; suppressions leave it untouched.
func (d *Dispatcher) Decide(n event.Notification, def event.Definition, known bool) Decision {
	return d.decide(n, def, known, false)
}

// decide is Decide; with claim set, a Dispatched outcome also takes the
// in-flight slot atomically, so a capture started elsewhere turns it into
// SuppressedBusy before the clock moves.
func (d *Dispatcher) decide(n event.Notification, def event.Definition, known, claim bool) Decision {
	if !known {
		return Decision{Outcome: SuppressedUnknown, Label: n.Hex()}
	}
	label := def.Label()
	if !def.Capture {
		return Decision{Outcome: SuppressedDisabled, Label: label}
	}
	if d.hasLast && n.At.Sub(d.last) < d.cfg.MinInterval {
		return Decision{Outcome: SuppressedDebounce, Label: label}
	}
	if claim {
		if !d.inFlight.CompareAndSwap(false, true) {
			return Decision{Outcome: SuppressedBusy, Label: label}
		}
	} else if d.inFlight.Load() {
		return Decision{Outcome: SuppressedBusy, Label: label}
	}
	d.last = n.At
	d.hasLast = true
	return Decision{
		Outcome: Dispatched,
		Label:   label,
		Request: CaptureRequest{Label: label, Notification: n},
	}
}

// Run consumes stream until it closes or ctx is done, then waits up to
// ShutdownGrace for an in-flight capture.
func (d *Dispatcher) Run(ctx context.Context, stream <-chan event.Notification, c Classifier) Stats {
	captureCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	d.mu.Lock()
	d.abort = abort
	d.mu.Unlock()
	defer abort()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case n, ok := <-stream:
			if !ok {
				break loop
			}
			d.handle(captureCtx, n, c)
		}
	}

	d.drain()
	return d.Stats()
}

func (d *Dispatcher) handle(ctx context.Context, n event.Notification, c Classifier) {
	if d.cfg.Verbose {
		debug.Live("[notify:%s] %s", n.Characteristic, n.Hex())
	}
	def, known := c.Classify(n)
	claim := !d.cfg.DryRun && d.camera != nil
	dec := d.decide(n, def, known, claim)

	d.mu.Lock()
	d.stats.Notifications++
	d.stats.Outcomes[dec.Outcome]++
	d.mu.Unlock()
	metrics.Decision(dec.Outcome.String())

	switch dec.Outcome {
	case Dispatched:
		debug.Live("SHUTTER PRESS (%s) %s", dec.Label, n.Hex())
		d.publish(event.KindDispatched, dec, n, "")
		switch {
		case d.cfg.DryRun:
			debug.Verbose("Dry-run: capture skipped")
		case !claim:
			debug.Warn("No camera configured: capture skipped (%s)", dec.Label)
		default:
			d.launch(ctx, dec.Request)
		}
	case SuppressedUnknown:
		debug.Live("Unknown signal %s on %s", n.Hex(), n.Characteristic)
		if d.cfg.Unknown != nil {
			d.cfg.Unknown.Add(n)
		}
		d.publish(event.KindSuppressed, dec, n, "")
	case SuppressedDebounce:
		debug.Live("Debounced %s (too soon)", dec.Label)
		d.publish(event.KindSuppressed, dec, n, "")
	case SuppressedDisabled, SuppressedBusy:
		debug.Live("Suppressed %s (%s)", dec.Label, dec.Outcome)
		d.publish(event.KindSuppressed, dec, n, "")
	}
}

// Trigger starts a capture outside the notification stream (manual capture
// from the status server). It does not touch the debounce clock.
func (d *Dispatcher) Trigger(ctx context.Context, label string) error {
	if d.cfg.DryRun {
		debug.Live("Manual capture (%s): dry-run", label)
		return nil
	}
	req := CaptureRequest{Label: label, Notification: event.Notification{At: time.Now()}}
	if !d.start(context.WithoutCancel(ctx), req) {
		return ErrBusy
	}
	debug.Live("Manual capture (%s)", label)
	return nil
}

// start launches the capture unless one is already running.
func (d *Dispatcher) start(ctx context.Context, req CaptureRequest) bool {
	if d.camera == nil || !d.inFlight.CompareAndSwap(false, true) {
		return false
	}
	d.launch(ctx, req)
	return true
}

// launch runs the capture in the background. The caller holds the
// in-flight slot; it is released when the capture ends.
func (d *Dispatcher) launch(ctx context.Context, req CaptureRequest) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.inFlight.Store(false)
		d.capture(ctx, req)
	}()
}

func (d *Dispatcher) capture(ctx context.Context, req CaptureRequest) {
	start := time.Now()
	out, err := d.camera.Shoot(ctx)
	took := time.Since(start)
	metrics.Capture(err, took)

	dec := Decision{Outcome: Dispatched, Label: req.Label}
	d.mu.Lock()
	if err != nil {
		d.stats.Failed++
	} else {
		d.stats.Captured++
	}
	d.mu.Unlock()

	if err != nil {
		debug.Errorf("Capture failed (%s): %v", req.Label, err)
		d.publishOutcome(dec, req.Notification, "error", err.Error())
		return
	}
	if out != "" {
		debug.Info("Captured: %s (%s)", out, debug.Duration(took))
	} else {
		debug.Info("Captured (%s)", debug.Duration(took))
	}
	d.publishOutcome(dec, req.Notification, "ok", out)
}

func (d *Dispatcher) drain() {
	if !d.inFlight.Load() {
		d.wg.Wait()
		return
	}
	debug.Info("Waiting up to %s for in-flight capture", debug.Duration(d.cfg.ShutdownGrace))
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	t := time.NewTimer(d.cfg.ShutdownGrace)
	defer t.Stop()
	select {
	case <-done:
		debug.Info("In-flight capture completed")
	case <-t.C:
		debug.Warn("Abandoning in-flight capture after %s", debug.Duration(d.cfg.ShutdownGrace))
		d.mu.Lock()
		abort := d.abort
		d.mu.Unlock()
		if abort != nil {
			abort()
		}
	}
}

// Stats returns a copy of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Outcomes = make(map[Outcome]int, len(d.stats.Outcomes))
	for k, v := range d.stats.Outcomes {
		s.Outcomes[k] = v
	}
	return s
}

func (d *Dispatcher) publish(kind string, dec Decision, n event.Notification, detail string) {
	if d.cfg.Sink == nil {
		return
	}
	d.cfg.Sink.Publish(event.Activity{
		Time:           time.Now(),
		Session:        d.cfg.Session,
		Profile:        d.cfg.Profile,
		Kind:           kind,
		Label:          dec.Label,
		Characteristic: n.Characteristic,
		Pattern:        n.Hex(),
		Outcome:        dec.Outcome.String(),
		Detail:         detail,
	})
}

func (d *Dispatcher) publishOutcome(dec Decision, n event.Notification, outcome, detail string) {
	if d.cfg.Sink == nil {
		return
	}
	a := event.Activity{
		Time:           time.Now(),
		Session:        d.cfg.Session,
		Profile:        d.cfg.Profile,
		Kind:           event.KindCapture,
		Label:          dec.Label,
		Characteristic: n.Characteristic,
		Outcome:        outcome,
		Detail:         detail,
	}
	if len(n.Data) > 0 {
		a.Pattern = n.Hex()
	}
	d.cfg.Sink.Publish(a)
}
