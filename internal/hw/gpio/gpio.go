// Package gpio drives the output lines wired to a camera's remote connector.
package gpio

import (
	"fmt"
	"sync"

	"github.com/shuttercam/shuttercam/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

func (m PinMode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Driver is the abstract interface for controlling GPIOs, so the remote
// release camera runs on a Raspberry Pi or against a mock.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiRealDriver()
}

// MockDriver keeps pin levels in memory and logs every access.
type MockDriver struct {
	mu     sync.Mutex
	modes  map[int]PinMode
	levels map[int]Level
	writes int
}

// NewMockDriver returns an empty mock.
func NewMockDriver() *MockDriver {
	return &MockDriver{modes: make(map[int]PinMode), levels: make(map[int]Level)}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.Trace("GPIO SetupPin pin=%d mode=%s (mock)", pin, mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pin] = mode
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.Trace("GPIO WritePin pin=%d level=%s (mock)", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if mode, ok := m.modes[pin]; ok && mode != Output {
		return fmt.Errorf("pin %d is configured as %s", pin, mode)
	}
	m.levels[pin] = level
	m.writes++
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.levels[pin]
	debug.Trace("GPIO ReadPin pin=%d -> %s (mock)", pin, l)
	return l, nil
}

// Writes returns how many writes the mock has seen.
func (m *MockDriver) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
