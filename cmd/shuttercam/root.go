package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shuttercam/shuttercam/internal/config"
	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/hw/ble"
	"github.com/shuttercam/shuttercam/internal/hw/camera"
	"github.com/shuttercam/shuttercam/internal/logic/dispatch"
	"github.com/shuttercam/shuttercam/internal/logic/session"
)

// app holds the persistent flag values shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string
	mock       bool

	// newTransport is swapped in tests.
	newTransport func(mock bool) (ble.Transport, error)
}

func newRootCmd(a *app) *cobra.Command {
	defaultConfig := os.Getenv(envConfig)
	if defaultConfig == "" {
		defaultConfig = config.DefaultPath()
	}

	root := &cobra.Command{
		Use:           "shuttercam",
		Short:         "Fire a camera from a Bluetooth LE shutter button",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := debug.Init(debug.Options{Level: a.logLevel, Format: a.logFormat, File: a.logFile}); err != nil {
				return usageError{err}
			}
			return nil
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", defaultConfig, "profile file (.toml, .yaml or .json; env "+envConfig+")")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: trace|debug|info|warning|error|off")
	pf.StringVar(&a.logFormat, "log-format", debug.FormatPlain, "log format: plain|time|json")
	pf.StringVar(&a.logFile, "log-file", "", "also append JSON log lines to this file")
	pf.BoolVar(&a.mock, "mock", false, "use a simulated button and GPIO (no Bluetooth adapter needed)")

	root.AddCommand(newScanCmd(a), newSetupCmd(a), newDebugCmd(a), newRunCmd(a))
	return root
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usagef("%s takes no arguments, got %q", cmd.CommandPath(), args)
	}
	return nil
}

// runner opens the profile store (creating a default file on first use) and
// the BLE transport. The caller closes the transport.
func (a *app) runner() (*session.Runner, error) {
	store, err := config.NewStore(a.configPath)
	if err != nil {
		return nil, usageError{err}
	}
	if err := store.EnsureExists(); err != nil {
		return nil, err
	}
	debug.Section("Initialization")
	debug.Value("Config path", store.Path())
	debug.Value("Mock hardware", a.mock)

	newTransport := a.newTransport
	if newTransport == nil {
		newTransport = ble.NewTransport
	}
	t, err := newTransport(a.mock)
	if err != nil {
		return nil, fmt.Errorf("open bluetooth adapter: %w", err)
	}
	r := session.NewRunner(store, t)
	mockGPIO := a.mock
	r.NewCamera = func(cfg config.CameraConfig) (dispatch.Camera, error) {
		return camera.New(cfg, mockGPIO || cfg.Remote.MockGPIO)
	}
	return r, nil
}

// simulate presses the mock button until ctx ends. It is a no-op for real
// transports.
func simulate(ctx context.Context, t ble.Transport, every time.Duration) {
	if m, ok := t.(*ble.MockTransport); ok {
		debug.Warn("Mock mode: simulating a press every %s", every)
		go m.Simulate(ctx, every)
	}
}
