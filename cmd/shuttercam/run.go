package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/shuttercam/shuttercam/internal/config"
	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/event"
	"github.com/shuttercam/shuttercam/internal/logic/dispatch"
	"github.com/shuttercam/shuttercam/internal/logic/session"
	"github.com/shuttercam/shuttercam/internal/mqtt"
	"github.com/shuttercam/shuttercam/internal/web"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		opts    session.TriggerOptions
		webAddr string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture a photo on every configured button event",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ReconnectDelay < 0 {
				return usagef("--reconnect-delay must not be negative")
			}
			r, err := a.runner()
			if err != nil {
				return err
			}
			defer r.Transport.Close()

			mqCfg, webCfg, err := r.Store.Settings()
			if err != nil {
				return err
			}
			if webAddr == "" && webCfg != nil {
				webAddr = webCfg.Addr
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			var wg sync.WaitGroup
			defer wg.Wait()
			defer cancel()

			var sinks event.Sinks
			if webAddr != "" {
				var origins []string
				if webCfg != nil {
					origins = webCfg.AllowedOrigins
				}
				b := web.NewStatusBroadcaster()
				srv := web.NewServer(webAddr, b, origins)
				sinks = append(sinks, b)
				opts.OnReady = func(d *dispatch.Dispatcher) { srv.SetCapturer(d) }
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := srv.Run(ctx); err != nil {
						debug.Errorf("web server: %v", err)
					}
				}()
			}
			if mqCfg != nil && mqCfg.Broker != "" {
				pub, err := startMQTT(ctx, &wg, *mqCfg)
				if err != nil {
					debug.Warn("%v; continuing without MQTT", err)
				} else {
					sinks = append(sinks, pub)
				}
			}
			if len(sinks) > 0 {
				r.Sink = sinks
			}

			if a.mock {
				simulate(ctx, r.Transport, 3*time.Second)
			}
			rep, err := r.RunTrigger(ctx, opts)
			if err != nil {
				return err
			}
			printTriggerReport(cmd, rep)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Profile, "profile", "", "profile to use (default: default_profile)")
	f.BoolVar(&opts.DryRun, "dry-run", false, "log decisions without taking photos")
	f.BoolVar(&opts.Verbose, "verbose", false, "print every notification payload")
	f.DurationVar(&opts.ReconnectDelay, "reconnect-delay", 0, "first reconnect backoff (default: profile setting)")
	f.BoolVar(&opts.SaveUnknown, "save-unknown", false, "append unrecognised signals to the profile at exit")
	f.DurationVar(&opts.ShutdownGrace, "shutdown-grace", 10*time.Second, "wait for an in-flight capture on exit")
	f.StringVar(&webAddr, "web", "", "serve status, SSE stream, /metrics and manual capture on this address (e.g. :8080)")
	return cmd
}

func startMQTT(ctx context.Context, wg *sync.WaitGroup, cfg config.MQTTConfig) (*mqtt.Publisher, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, err
	}
	pub := mqtt.NewPublisher(client, mqtt.PublisherConfig{TopicPrefix: cfg.TopicPrefix, QoS: byte(cfg.QoS)})
	wg.Add(1)
	go func() {
		defer wg.Done()
		pub.Start(ctx)
		client.Disconnect(250)
	}()
	return pub, nil
}

func printTriggerReport(cmd *cobra.Command, rep *session.TriggerReport) {
	out := cmd.OutOrStdout()
	s := rep.Stats
	fmt.Fprintf(out, "Session %s (%s): %d notification(s), %d capture(s), %d failed\n",
		rep.Session, rep.Profile, s.Notifications, s.Captured, s.Failed)
	for _, o := range []dispatch.Outcome{dispatch.SuppressedUnknown, dispatch.SuppressedDisabled, dispatch.SuppressedDebounce, dispatch.SuppressedBusy} {
		if n := s.Outcomes[o]; n > 0 {
			fmt.Fprintf(out, "  %-9s %d\n", o.String()+":", n)
		}
	}
	if len(rep.Unknown) > 0 {
		fmt.Fprintf(out, "Unknown signals: %d distinct", len(rep.Unknown))
		if rep.Saved > 0 {
			fmt.Fprintf(out, " (%d saved)", rep.Saved)
		}
		fmt.Fprintln(out)
	}
}
