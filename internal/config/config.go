package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shuttercam/shuttercam/internal/event"
)

// DefaultNotifyUUID is the HID report characteristic used by BBL_SHUTTER buttons.
const DefaultNotifyUUID = "00002a4d-0000-1000-8000-00805f9b34fb"

// ErrMalformedProfile is returned when a profile lacks what a session needs
// to connect (address, notify characteristic) or carries unusable events.
var ErrMalformedProfile = errors.New("malformed profile")

// ErrProfileNotFound is returned when the requested profile does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// EventConfig is one persisted trigger definition.
type EventConfig struct {
	UUID    string `toml:"uuid,omitempty" yaml:"uuid,omitempty" json:"uuid,omitempty"`
	Hex     string `toml:"hex" yaml:"hex" json:"hex"`
	Name    string `toml:"name,omitempty" yaml:"name,omitempty" json:"name,omitempty"`
	Capture bool   `toml:"capture" yaml:"capture" json:"capture"`
	Count   int    `toml:"count,omitempty" yaml:"count,omitempty" json:"count,omitempty"` // observations when discovered
}

// DeviceConfig describes the paired shutter button.
type DeviceConfig struct {
	Name       string        `toml:"name,omitempty" yaml:"name,omitempty" json:"name,omitempty"`
	MAC        string        `toml:"mac,omitempty" yaml:"mac,omitempty" json:"mac,omitempty"`
	NotifyUUID string        `toml:"notify_uuid,omitempty" yaml:"notify_uuid,omitempty" json:"notify_uuid,omitempty"`
	Events     []EventConfig `toml:"events,omitempty" yaml:"events,omitempty" json:"events,omitempty"`
}

// RpicamConfig holds rpicam-still options. Nil means "not passed".
type RpicamConfig struct {
	Binary        string   `toml:"binary,omitempty" yaml:"binary,omitempty" json:"binary,omitempty"`
	Width         *int     `toml:"width,omitempty" yaml:"width,omitempty" json:"width,omitempty"`
	Height        *int     `toml:"height,omitempty" yaml:"height,omitempty" json:"height,omitempty"`
	Nopreview     *bool    `toml:"nopreview,omitempty" yaml:"nopreview,omitempty" json:"nopreview,omitempty"`
	Rotation      *int     `toml:"rotation,omitempty" yaml:"rotation,omitempty" json:"rotation,omitempty"` // 0/90/180/270
	HFlip         bool     `toml:"hflip,omitempty" yaml:"hflip,omitempty" json:"hflip,omitempty"`
	VFlip         bool     `toml:"vflip,omitempty" yaml:"vflip,omitempty" json:"vflip,omitempty"`
	AWB           *string  `toml:"awb,omitempty" yaml:"awb,omitempty" json:"awb,omitempty"`
	EV            *int     `toml:"ev,omitempty" yaml:"ev,omitempty" json:"ev,omitempty"`
	Denoise       *string  `toml:"denoise,omitempty" yaml:"denoise,omitempty" json:"denoise,omitempty"`
	Sharpness     *float64 `toml:"sharpness,omitempty" yaml:"sharpness,omitempty" json:"sharpness,omitempty"`
	Shutter       *int     `toml:"shutter,omitempty" yaml:"shutter,omitempty" json:"shutter,omitempty"` // microseconds
	Gain          *float64 `toml:"gain,omitempty" yaml:"gain,omitempty" json:"gain,omitempty"`
	AWBGains      *string  `toml:"awbgains,omitempty" yaml:"awbgains,omitempty" json:"awbgains,omitempty"` // "r,b"
	Saturation    *float64 `toml:"saturation,omitempty" yaml:"saturation,omitempty" json:"saturation,omitempty"`
	Contrast      *float64 `toml:"contrast,omitempty" yaml:"contrast,omitempty" json:"contrast,omitempty"`
	Brightness    *float64 `toml:"brightness,omitempty" yaml:"brightness,omitempty" json:"brightness,omitempty"`
	Metering      *string  `toml:"metering,omitempty" yaml:"metering,omitempty" json:"metering,omitempty"`
	AutofocusMode *string  `toml:"autofocus_mode,omitempty" yaml:"autofocus_mode,omitempty" json:"autofocus_mode,omitempty"`
	LensPosition  *float64 `toml:"lens_position,omitempty" yaml:"lens_position,omitempty" json:"lens_position,omitempty"`
	Quality       *int     `toml:"quality,omitempty" yaml:"quality,omitempty" json:"quality,omitempty"`
	Timeout       *int     `toml:"timeout,omitempty" yaml:"timeout,omitempty" json:"timeout,omitempty"` // milliseconds
}

// RemoteConfig drives a camera through its wired remote connector (GPIO).
type RemoteConfig struct {
	FocusPin       int  `toml:"focus_pin,omitempty" yaml:"focus_pin,omitempty" json:"focus_pin,omitempty"`
	ShutterPin     int  `toml:"shutter_pin,omitempty" yaml:"shutter_pin,omitempty" json:"shutter_pin,omitempty"`
	FocusDelayMs   int  `toml:"focus_delay_ms,omitempty" yaml:"focus_delay_ms,omitempty" json:"focus_delay_ms,omitempty"`
	ShutterDelayMs int  `toml:"shutter_delay_ms,omitempty" yaml:"shutter_delay_ms,omitempty" json:"shutter_delay_ms,omitempty"`
	MockGPIO       bool `toml:"mock_gpio,omitempty" yaml:"mock_gpio,omitempty" json:"mock_gpio,omitempty"`
}

// CameraConfig describes how a capture is performed.
// Type selects the implementation ("rpicam" or "gpio_remote").
type CameraConfig struct {
	Type           string       `toml:"type,omitempty" yaml:"type,omitempty" json:"type,omitempty"`
	OutputDir      string       `toml:"output_dir,omitempty" yaml:"output_dir,omitempty" json:"output_dir,omitempty"`
	FilenameFormat string       `toml:"filename_format,omitempty" yaml:"filename_format,omitempty" json:"filename_format,omitempty"` // strftime
	MinIntervalSec *float64     `toml:"min_interval_sec,omitempty" yaml:"min_interval_sec,omitempty" json:"min_interval_sec,omitempty"`
	Rpicam         RpicamConfig `toml:"rpicam" yaml:"rpicam" json:"rpicam"`
	Remote         RemoteConfig `toml:"remote,omitempty" yaml:"remote,omitempty" json:"remote,omitempty"`
}

// LinkConfig tunes connection and reconnect timing.
type LinkConfig struct {
	ConnectTimeoutSec    float64 `toml:"connect_timeout_sec,omitempty" yaml:"connect_timeout_sec,omitempty" json:"connect_timeout_sec,omitempty"`
	ReconnectDelaySec    float64 `toml:"reconnect_delay_sec,omitempty" yaml:"reconnect_delay_sec,omitempty" json:"reconnect_delay_sec,omitempty"`
	MaxReconnectDelaySec float64 `toml:"max_reconnect_delay_sec,omitempty" yaml:"max_reconnect_delay_sec,omitempty" json:"max_reconnect_delay_sec,omitempty"`
	IdleTimeoutSec       float64 `toml:"idle_timeout_sec,omitempty" yaml:"idle_timeout_sec,omitempty" json:"idle_timeout_sec,omitempty"` // 0 = never
}

// DiscoveryConfig holds policy used when persisting discovered signals.
type DiscoveryConfig struct {
	// ZeroPatternCapture is the capture flag given to an all-zero payload
	// (usually the button release). Other payloads default to true.
	ZeroPatternCapture bool `toml:"zero_pattern_capture,omitempty" yaml:"zero_pattern_capture,omitempty" json:"zero_pattern_capture,omitempty"`
}

// Profile bundles one physical setup: button, camera and tuning.
type Profile struct {
	Name      string          `toml:"-" yaml:"-" json:"-"`
	Device    DeviceConfig    `toml:"device" yaml:"device" json:"device"`
	Camera    CameraConfig    `toml:"camera" yaml:"camera" json:"camera"`
	Link      LinkConfig      `toml:"link,omitempty" yaml:"link,omitempty" json:"link,omitempty"`
	Discovery DiscoveryConfig `toml:"discovery,omitempty" yaml:"discovery,omitempty" json:"discovery,omitempty"`
}

// MQTTConfig enables publishing session activity to a broker.
type MQTTConfig struct {
	Broker      string `toml:"broker" yaml:"broker" json:"broker"` // e.g. tcp://localhost:1883
	ClientID    string `toml:"client_id,omitempty" yaml:"client_id,omitempty" json:"client_id,omitempty"`
	Username    string `toml:"username,omitempty" yaml:"username,omitempty" json:"username,omitempty"`
	Password    string `toml:"password,omitempty" yaml:"password,omitempty" json:"password,omitempty"`
	TopicPrefix string `toml:"topic_prefix,omitempty" yaml:"topic_prefix,omitempty" json:"topic_prefix,omitempty"`
	QoS         int    `toml:"qos,omitempty" yaml:"qos,omitempty" json:"qos,omitempty"`
}

// WebConfig configures the optional status server.
type WebConfig struct {
	Addr           string   `toml:"addr,omitempty" yaml:"addr,omitempty" json:"addr,omitempty"`
	AllowedOrigins []string `toml:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`
}

// File is the whole configuration document.
type File struct {
	DefaultProfile string              `toml:"default_profile,omitempty" yaml:"default_profile,omitempty" json:"default_profile,omitempty"`
	MQTT           *MQTTConfig         `toml:"mqtt,omitempty" yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Web            *WebConfig          `toml:"web,omitempty" yaml:"web,omitempty" json:"web,omitempty"`
	Profiles       map[string]*Profile `toml:"profiles" yaml:"profiles" json:"profiles"`
}

// DefaultEvents are used when a profile has no events configured.
func DefaultEvents(notifyUUID string) []EventConfig {
	if notifyUUID == "" {
		notifyUUID = DefaultNotifyUUID
	}
	return []EventConfig{
		{UUID: notifyUUID, Hex: "4000", Capture: true, Name: "manual_button"},
		{UUID: notifyUUID, Hex: "8000", Capture: true, Name: "bambu_studio"},
		{UUID: notifyUUID, Hex: "0000", Capture: false, Name: "release"},
	}
}

// applyDefaults fills unset values. name is the profile key.
func (p *Profile) applyDefaults(name string) {
	p.Name = name
	if p.Device.Name == "" {
		p.Device.Name = "BBL_SHUTTER"
	}
	if p.Camera.Type == "" {
		p.Camera.Type = "rpicam"
	}
	if p.Camera.OutputDir == "" {
		p.Camera.OutputDir = "~/captures/" + name
	}
	if p.Camera.FilenameFormat == "" {
		p.Camera.FilenameFormat = "%Y%m%d_%H%M%S.jpg"
	}
	if p.Camera.MinIntervalSec == nil {
		d := 0.5
		p.Camera.MinIntervalSec = &d
	}
	if p.Camera.Rpicam.Binary == "" {
		p.Camera.Rpicam.Binary = "rpicam-still"
	}
	if p.Camera.Rpicam.Width == nil {
		w := 1920
		p.Camera.Rpicam.Width = &w
	}
	if p.Camera.Rpicam.Height == nil {
		h := 1080
		p.Camera.Rpicam.Height = &h
	}
	if p.Camera.Rpicam.Nopreview == nil {
		t := true
		p.Camera.Rpicam.Nopreview = &t
	}
	if p.Camera.Remote.FocusDelayMs <= 0 {
		p.Camera.Remote.FocusDelayMs = 500
	}
	if p.Camera.Remote.ShutterDelayMs <= 0 {
		p.Camera.Remote.ShutterDelayMs = 200
	}
	if p.Link.ConnectTimeoutSec <= 0 {
		p.Link.ConnectTimeoutSec = 30
	}
	if p.Link.ReconnectDelaySec <= 0 {
		p.Link.ReconnectDelaySec = 2
	}
	if p.Link.MaxReconnectDelaySec <= 0 {
		p.Link.MaxReconnectDelaySec = 30
	}
	if p.Link.MaxReconnectDelaySec < p.Link.ReconnectDelaySec {
		p.Link.MaxReconnectDelaySec = p.Link.ReconnectDelaySec
	}
}

// Validate checks the fields a session needs before connecting.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Device.MAC) == "" {
		return fmt.Errorf("%w: profile %q has no device.mac (run setup first)", ErrMalformedProfile, p.Name)
	}
	if strings.TrimSpace(p.Device.NotifyUUID) == "" {
		return fmt.Errorf("%w: profile %q has no device.notify_uuid (run setup to learn it)", ErrMalformedProfile, p.Name)
	}
	if p.Camera.MinIntervalSec != nil && *p.Camera.MinIntervalSec < 0 {
		return fmt.Errorf("%w: camera.min_interval_sec must not be negative, got %g", ErrMalformedProfile, *p.Camera.MinIntervalSec)
	}
	switch p.Camera.Type {
	case "rpicam", "gpio_remote":
	default:
		return fmt.Errorf("%w: unsupported camera.type %q", ErrMalformedProfile, p.Camera.Type)
	}
	return nil
}

// Definitions converts the profile events into event definitions.
// Events without a uuid target the profile's notify characteristic.
func (p *Profile) Definitions() ([]event.Definition, error) {
	events := p.Device.Events
	if len(events) == 0 {
		events = DefaultEvents(p.Device.NotifyUUID)
	}
	defs := make([]event.Definition, 0, len(events))
	for i, e := range events {
		pattern, err := event.ParsePattern(e.Hex)
		if err != nil {
			return nil, fmt.Errorf("%w: device.events[%d]: %v", ErrMalformedProfile, i, err)
		}
		defs = append(defs, event.Definition{
			Characteristic: p.characteristicFor(e),
			Pattern:        pattern,
			Name:           e.Name,
			Capture:        e.Capture,
		})
	}
	return defs, nil
}

// characteristicFor resolves the canonical characteristic an event targets:
// its own uuid, else the profile's notify UUID, else the HID report default.
func (p *Profile) characteristicFor(e EventConfig) string {
	char := e.UUID
	if char == "" {
		char = p.Device.NotifyUUID
	}
	if char == "" {
		char = DefaultNotifyUUID
	}
	return event.CanonicalUUID(char)
}

// MinInterval returns the minimum time between two captures. Zero disables
// debouncing.
func (p *Profile) MinInterval() time.Duration {
	if p.Camera.MinIntervalSec == nil {
		return 500 * time.Millisecond
	}
	return seconds(*p.Camera.MinIntervalSec)
}

// ConnectTimeout bounds the initial connection attempt.
func (p *Profile) ConnectTimeout() time.Duration {
	return seconds(p.Link.ConnectTimeoutSec)
}

// ReconnectDelay is the first backoff interval after link loss.
func (p *Profile) ReconnectDelay() time.Duration {
	return seconds(p.Link.ReconnectDelaySec)
}

// MaxReconnectDelay caps the reconnect backoff.
func (p *Profile) MaxReconnectDelay() time.Duration {
	return seconds(p.Link.MaxReconnectDelaySec)
}

// IdleTimeout is how long a silent link is trusted. Zero disables the check.
func (p *Profile) IdleTimeout() time.Duration {
	return seconds(p.Link.IdleTimeoutSec)
}

// FocusDelay returns the autofocus delay for the remote release camera.
func (r RemoteConfig) FocusDelay() time.Duration {
	return time.Duration(r.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold time for the remote release camera.
func (r RemoteConfig) ShutterDelay() time.Duration {
	return time.Duration(r.ShutterDelayMs) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
