package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newScanCmd(a *app) *cobra.Command {
	var (
		name    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List nearby Bluetooth LE devices",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout <= 0 {
				return usagef("--timeout must be positive")
			}
			r, err := a.runner()
			if err != nil {
				return err
			}
			defer r.Transport.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanning for %s...\n", timeout)
			found, err := r.Scan(cmd.Context(), name, timeout)
			if err != nil {
				return err
			}
			if len(found) == 0 {
				fmt.Fprintln(out, "No devices found.")
				return nil
			}
			fmt.Fprintf(out, "Found %d device(s):\n", len(found))
			for _, p := range found {
				label := p.Name
				if label == "" {
					label = "(unnamed)"
				}
				fmt.Fprintf(out, "  %-20s %s  RSSI %d\n", label, p.Address, p.RSSI)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "only list devices advertising exactly this name")
	cmd.Flags().DurationVar(&timeout, "timeout", 8*time.Second, "scan duration")
	return cmd
}
