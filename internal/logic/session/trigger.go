package session

import (
	"context"
	"time"

	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/hw/camera"
	"github.com/shuttercam/shuttercam/internal/logic/catalog"
	"github.com/shuttercam/shuttercam/internal/logic/discovery"
	"github.com/shuttercam/shuttercam/internal/logic/dispatch"
	"github.com/shuttercam/shuttercam/internal/logic/link"
)

// TriggerOptions configures a trigger session.
type TriggerOptions struct {
	Profile string // empty = default profile
	DryRun  bool
	Verbose bool
	// ReconnectDelay overrides the profile's first backoff interval.
	ReconnectDelay time.Duration
	// SaveUnknown appends unseen patterns to the profile at exit.
	SaveUnknown   bool
	ShutdownGrace time.Duration
	// OnReady is called once the link is up, with the dispatcher that
	// accepts manual captures.
	OnReady func(*dispatch.Dispatcher)
}

// TriggerReport summarises a finished trigger session.
type TriggerReport struct {
	Profile string
	Session string
	Stats   dispatch.Stats
	Unknown []catalog.Unseen
	Saved   int
}

// RunTrigger connects to the profile's button and captures on configured
// events until ctx is cancelled.
func (r *Runner) RunTrigger(ctx context.Context, opts TriggerOptions) (*TriggerReport, error) {
	p, cat, err := r.loadProfile(opts.Profile, true)
	if err != nil {
		return nil, err
	}

	debug.Info("Profile: %s", p.Name)
	debug.Info("MAC: %s", p.Device.MAC)
	debug.Info("Notify UUID: %s", p.Device.NotifyUUID)
	debug.Info("Output dir: %s", p.Camera.OutputDir)
	debug.Info("Configured triggers: %d", cat.Captures())
	if opts.DryRun {
		debug.Warn("Dry-run enabled: no photos will be taken.")
	}

	var cam dispatch.Camera
	if !opts.DryRun {
		if cam, err = r.camera(p.Camera); err != nil {
			return nil, err
		}
		if c, ok := cam.(camera.Closer); ok {
			defer c.Close()
		}
	}

	pub := newPublisher(r.Sink, p.Name)
	cfg := r.linkConfig(p, opts.ReconnectDelay)
	cfg.OnState = pub.state
	mgr := link.NewManager(r.Transport, cfg)

	stream, err := mgr.Open(ctx, p.Device.MAC)
	if err != nil {
		return nil, err
	}
	defer mgr.Close()
	debug.Info("Listening… (Ctrl+C to quit)")

	unknown := catalog.NewAccumulator()
	d := dispatch.New(cam, dispatch.Config{
		MinInterval:   p.MinInterval(),
		DryRun:        opts.DryRun,
		ShutdownGrace: opts.ShutdownGrace,
		Verbose:       opts.Verbose,
		Session:       pub.session,
		Profile:       p.Name,
		Sink:          r.Sink,
		Unknown:       unknown,
	})
	if opts.OnReady != nil {
		opts.OnReady(d)
	}

	stats := d.Run(ctx, stream, cat)
	mgr.Close()
	debug.Info("Exiting.")

	rep := &TriggerReport{
		Profile: p.Name,
		Session: pub.session,
		Stats:   stats,
		Unknown: unknown.Snapshot(),
	}
	if opts.SaveUnknown && len(rep.Unknown) > 0 {
		s := summaryFromUnseen(rep.Unknown)
		defs := discovery.Synthesize(s, cat, discovery.Policy{ZeroPatternCapture: p.Discovery.ZeroPatternCapture})
		n, err := r.Store.AppendEvents(p.Name, defs, s.Counts())
		if err != nil {
			return rep, err
		}
		rep.Saved = n
		debug.Info("Saved %d unknown signal(s) to profile '%s'", n, p.Name)
	}
	return rep, nil
}

func summaryFromUnseen(us []catalog.Unseen) discovery.Summary {
	var s discovery.Summary
	for _, u := range us {
		s.Entries = append(s.Entries, discovery.Entry{
			Characteristic: u.Key.Characteristic,
			Pattern:        u.Key.Bytes(),
			Count:          u.Count,
			FirstSeen:      u.FirstSeen,
			LastSeen:       u.LastSeen,
		})
		s.Total += u.Count
	}
	return s
}
