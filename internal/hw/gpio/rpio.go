package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/shuttercam/shuttercam/internal/debug"
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
}

// NewRPiRealDriver maps GPIO memory.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	debug.Verbose("GPIO memory mapped")

	return &RPiDriver{pins: make(map[int]rpio.Pin)}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setup(pin, mode)
}

func (r *RPiDriver) setup(pin int, mode PinMode) error {
	debug.Trace("GPIO SetupPin pin=%d mode=%s", pin, mode)
	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	debug.Trace("GPIO WritePin pin=%d level=%s", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		if err := r.setup(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pins[pin]
	if !ok {
		if err := r.setup(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}
	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

// Close returns every used pin to input, the safe state for an opto-isolated
// remote connector, and unmaps GPIO memory.
func (r *RPiDriver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}
	return rpio.Close()
}
