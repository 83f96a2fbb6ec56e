package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shuttercam/shuttercam/internal/logic/session"
)

func newSetupCmd(a *app) *cobra.Command {
	var opts session.SetupOptions
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Pair a shutter button with a profile",
		Long: "Finds the button by name (or --mac), waits for one press to learn its\n" +
			"notify characteristic, and stores both in the profile, which becomes the default.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.Profile) == "" {
				return usagef("--profile is required")
			}
			r, err := a.runner()
			if err != nil {
				return err
			}
			defer r.Transport.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Press the shutter button within %s of connecting.\n", opts.PressTimeout)
			if a.mock {
				simulate(cmd.Context(), r.Transport, time.Second)
			}
			res, err := r.Setup(cmd.Context(), opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Saved profile '%s' to %s\n", opts.Profile, r.Store.Path())
			fmt.Fprintf(out, "  MAC:         %s\n", res.MAC)
			fmt.Fprintf(out, "  Notify UUID: %s\n", res.NotifyUUID)
			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintf(out, "  shuttercam debug --profile %s   # inspect raw signals\n", opts.Profile)
			fmt.Fprintf(out, "  shuttercam run --profile %s     # start capturing\n", opts.Profile)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Profile, "profile", "", "profile to create or update (required)")
	f.StringVar(&opts.Name, "name", "BBL_SHUTTER", "advertised device name to look for")
	f.StringVar(&opts.MAC, "mac", "", "device address; skips scanning")
	f.DurationVar(&opts.ScanTimeout, "timeout", 10*time.Second, "scan duration")
	f.DurationVar(&opts.PressTimeout, "press-timeout", 30*time.Second, "how long to wait for a press")
	f.BoolVar(&opts.Verbose, "verbose", false, "print every notification while waiting")
	return cmd
}
