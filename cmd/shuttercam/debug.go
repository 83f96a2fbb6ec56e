package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/shuttercam/shuttercam/internal/logic/session"
)

func newDebugCmd(a *app) *cobra.Command {
	var opts session.DiscoveryOptions
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Print every signal the button sends and summarise them",
		Long: "Subscribes to every notify characteristic and prints each payload as\n" +
			"HEX, DEC and length. A duration of 0 listens until Ctrl+C.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Duration < 0 {
				return usagef("--duration must not be negative")
			}
			r, err := a.runner()
			if err != nil {
				return err
			}
			defer r.Transport.Close()
			r.Out = cmd.OutOrStdout()

			if a.mock {
				simulate(cmd.Context(), r.Transport, 2*time.Second)
			}
			_, err = r.RunDiscovery(cmd.Context(), opts)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Profile, "profile", "", "profile to use (default: default_profile)")
	f.StringVar(&opts.MAC, "mac", "", "device address; overrides the profile")
	f.DurationVar(&opts.Duration, "duration", 120*time.Second, "listen time; 0 = until Ctrl+C")
	f.BoolVar(&opts.Persist, "update-config", false, "append newly seen signals to the profile")
	return cmd
}
