package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/shuttercam/shuttercam/internal/event"
	"github.com/shuttercam/shuttercam/internal/fsutil"
)

// AppName names the config directory.
const AppName = "bbl-shutter-cam"

// DefaultPath returns the platform config location
// (~/.config/bbl-shutter-cam/config.toml on Linux, %APPDATA% on Windows).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join("~", ".config", AppName, "config.toml")
	}
	return filepath.Join(dir, AppName, "config.toml")
}

// Store reads and writes the profile file. The codec is chosen by file
// extension: .toml, .yaml/.yml or .json.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store for path ("~" is expanded).
func NewStore(path string) (*Store, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	if _, err := codecFor(p); err != nil {
		return nil, err
	}
	return &Store{path: p}, nil
}

// Path returns the resolved file path.
func (s *Store) Path() string {
	return s.path
}

// EnsureExists writes a minimal configuration with a "default" profile if
// the file is missing.
func (s *Store) EnsureExists() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fsutil.PathExists(s.path) {
		return nil
	}
	f := &File{
		DefaultProfile: "default",
		Profiles: map[string]*Profile{
			"default": {
				Device: DeviceConfig{Name: "BBL_SHUTTER"},
				Camera: CameraConfig{
					OutputDir:      "~/captures/default",
					FilenameFormat: "%Y%m%d_%H%M%S.jpg",
				},
			},
		},
	}
	w, h, np, interval := 1920, 1080, true, 0.5
	f.Profiles["default"].Camera.Rpicam = RpicamConfig{Width: &w, Height: &h, Nopreview: &np}
	f.Profiles["default"].Camera.MinIntervalSec = &interval
	return s.write(f)
}

// Load reads the whole file.
func (s *Store) Load() (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Save writes the whole file.
func (s *Store) Save(f *File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(f)
}

// Profile loads one profile with defaults applied. An empty name resolves
// to default_profile.
func (s *Store) Profile(name string) (*Profile, error) {
	f, err := s.Load()
	if err != nil {
		return nil, err
	}
	if len(f.Profiles) == 0 {
		return nil, fmt.Errorf("%w: no [profiles] section in %s", ErrProfileNotFound, s.path)
	}
	if name == "" {
		name = f.DefaultProfile
		if name == "" {
			return nil, fmt.Errorf("%w: no profile specified and no default_profile set", ErrProfileNotFound)
		}
	}
	p, ok := f.Profiles[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	p.applyDefaults(name)
	return p, nil
}

// Settings returns the file-level MQTT and web sections.
func (s *Store) Settings() (*MQTTConfig, *WebConfig, error) {
	f, err := s.Load()
	if err != nil {
		return nil, nil, err
	}
	return f.MQTT, f.Web, nil
}

// UpdateDevice records the paired MAC and notify UUID for a profile
// (created if new) and makes it the default profile.
func (s *Store) UpdateDevice(name, mac, notifyUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.readOrEmpty()
	if err != nil {
		return err
	}
	p := f.Profiles[name]
	if p == nil {
		p = &Profile{}
		f.Profiles[name] = p
	}
	p.Device.MAC = mac
	p.Device.NotifyUUID = notifyUUID
	f.DefaultProfile = name
	return s.write(f)
}

// AppendEvents adds definitions to a profile's event list. Definitions whose
// (uuid, hex) already exist are skipped. When the profile had no events, the
// implicit defaults are written first so they are not lost. counts, if given,
// are stored alongside each new event. It returns the number added.
func (s *Store) AppendEvents(name string, defs []event.Definition, counts map[event.Key]int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.read()
	if err != nil {
		return 0, err
	}
	p := f.Profiles[name]
	if p == nil {
		return 0, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	if len(p.Device.Events) == 0 {
		p.Device.Events = DefaultEvents(p.Device.NotifyUUID)
	}

	existing := make(map[event.Key]bool, len(p.Device.Events))
	for _, e := range p.Device.Events {
		pattern, err := event.ParsePattern(e.Hex)
		if err != nil {
			continue
		}
		existing[event.NewKey(p.characteristicFor(e), pattern)] = true
	}

	added := 0
	for _, d := range defs {
		k := d.Key()
		if existing[k] {
			continue
		}
		existing[k] = true
		p.Device.Events = append(p.Device.Events, EventConfig{
			UUID:    k.Characteristic,
			Hex:     event.FormatPattern(d.Pattern),
			Name:    d.Name,
			Capture: d.Capture,
			Count:   counts[k],
		})
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, s.write(f)
}

// ProfileNames lists configured profiles, sorted.
func (s *Store) ProfileNames() ([]string, error) {
	f, err := s.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.Profiles))
	for n := range f.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) read() (*File, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	c, err := codecFor(s.path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := c.unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if f.Profiles == nil {
		f.Profiles = make(map[string]*Profile)
	}
	return &f, nil
}

func (s *Store) readOrEmpty() (*File, error) {
	if !fsutil.PathExists(s.path) {
		return &File{Profiles: make(map[string]*Profile)}, nil
	}
	return s.read()
}

// write replaces the file atomically via a temp file in the same directory.
func (s *Store) write(f *File) error {
	c, err := codecFor(s.path)
	if err != nil {
		return err
	}
	data, err := c.marshal(f)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if _, err := fsutil.EnsureDir(filepath.Dir(s.path)); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

type codec struct {
	marshal   func(v any) ([]byte, error)
	unmarshal func(data []byte, v any) error
}

func codecFor(path string) (codec, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return codec{marshal: toml.Marshal, unmarshal: toml.Unmarshal}, nil
	case ".yaml", ".yml":
		return codec{marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}, nil
	case ".json":
		return codec{
			marshal:   func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
			unmarshal: json.Unmarshal,
		}, nil
	default:
		return codec{}, fmt.Errorf("unsupported config extension: %q", ext)
	}
}
