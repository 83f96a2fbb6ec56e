package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shuttercam/shuttercam/internal/config"
	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/event"
	"github.com/shuttercam/shuttercam/internal/logic/discovery"
	"github.com/shuttercam/shuttercam/internal/logic/link"
)

// DiscoveryOptions configures a discovery session.
type DiscoveryOptions struct {
	Profile string
	// MAC overrides the profile's device address.
	MAC string
	// Duration bounds the session; 0 listens until ctx is cancelled.
	Duration time.Duration
	// Persist appends newly seen patterns to the profile.
	Persist bool
}

// DiscoveryReport is the outcome of a discovery session.
type DiscoveryReport struct {
	Summary     discovery.Summary
	Definitions []event.Definition // patterns not yet in the profile
	Saved       int
}

// RunDiscovery subscribes to every notify characteristic, prints each signal
// and returns the frequency summary. The summary is printed whether the
// session timed out or was cancelled.
func (r *Runner) RunDiscovery(ctx context.Context, opts DiscoveryOptions) (*DiscoveryReport, error) {
	p, cat, err := r.loadProfile(opts.Profile, false)
	if err != nil {
		return nil, err
	}
	mac := strings.TrimSpace(opts.MAC)
	if mac == "" {
		mac = p.Device.MAC
	}
	if mac == "" {
		return nil, fmt.Errorf("%w: profile %q has no MAC (run setup first or provide --mac)", config.ErrMalformedProfile, p.Name)
	}

	pub := newPublisher(r.Sink, p.Name)
	cfg := r.linkConfig(p, 0)
	cfg.Characteristic = ""
	cfg.SubscribeAll = true
	cfg.IdleTimeout = 0
	cfg.OnState = pub.state
	mgr := link.NewManager(r.Transport, cfg)

	debug.Info("Connecting to %s…", mac)
	stream, err := mgr.Open(ctx, mac)
	if err != nil {
		return nil, err
	}
	defer mgr.Close()

	out := r.out()
	chars := mgr.Subscribed()
	debug.Info("Subscribed to %d NOTIFY characteristic(s):", len(chars))
	for _, c := range chars {
		fmt.Fprintf(out, "  - %s\n", c)
	}
	fmt.Fprintln(out)
	if opts.Duration > 0 {
		fmt.Fprintf(out, "Listening for %s…\n(Trigger your device now to see signals)\n\n", opts.Duration)
	} else {
		fmt.Fprint(out, "Listening indefinitely… Press Ctrl+C to exit\n\n")
	}

	rec := discovery.NewRecorder()
	rec.OnObserve = func(n event.Notification) {
		discovery.PrintSignal(out, n)
		pub.Publish(event.Activity{
			Kind:           event.KindSignal,
			Characteristic: n.Characteristic,
			Pattern:        n.Hex(),
			Label:          labelFor(cat, n),
		})
	}
	summary := rec.Run(ctx, stream, opts.Duration)
	mgr.Close()
	if ctx.Err() != nil {
		fmt.Fprintln(out, "\nStopping capture…")
	}
	discovery.PrintSummary(out, summary)

	rep := &DiscoveryReport{
		Summary:     summary,
		Definitions: discovery.Synthesize(summary, cat, discovery.Policy{ZeroPatternCapture: p.Discovery.ZeroPatternCapture}),
	}
	if len(rep.Definitions) > 0 {
		fmt.Fprintf(out, "\n%d new signal(s):\n", len(rep.Definitions))
		discovery.PrintDefinitions(out, rep.Definitions)
	}
	if opts.Persist && len(rep.Definitions) > 0 {
		n, err := r.Store.AppendEvents(p.Name, rep.Definitions, summary.Counts())
		if err != nil {
			return rep, err
		}
		rep.Saved = n
		debug.Info("Updated profile '%s' with %d discovered signal(s)", p.Name, n)
		fmt.Fprintf(out, "\n✓ Config updated with %d signal(s)\n  Location: %s\n", n, r.Store.Path())
	}
	return rep, nil
}

type classifier interface {
	Classify(n event.Notification) (event.Definition, bool)
}

func labelFor(c classifier, n event.Notification) string {
	if def, ok := c.Classify(n); ok {
		return def.Label()
	}
	return ""
}
