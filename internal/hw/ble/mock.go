package ble

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/event"
)

// MockTransport is an in-memory peripheral for tests and --mock runs.
// One connection is live at a time; Emit delivers to its subscribers.
type MockTransport struct {
	mu sync.Mutex

	// Advertisements returned by Scan.
	Advertisements []Advertisement
	// Characteristics reported by NotifyCharacteristics.
	Characteristics []string
	// DialErr, when set, is returned by the next DialFailures dials
	// (every dial if DialFailures is 0).
	DialErr      error
	DialFailures int

	dials int
	conn  *mockConn
	stale *mockConn // last dropped connection
}

// NewMockTransport returns a mock advertising one BBL_SHUTTER button with
// the HID report characteristic.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		Advertisements: []Advertisement{{Address: "AA:BB:CC:DD:EE:FF", Name: "BBL_SHUTTER", RSSI: -52}},
		Characteristics: []string{
			"00002a4d-0000-1000-8000-00805f9b34fb",
		},
	}
}

// Dials returns the number of Dial calls so far.
func (m *MockTransport) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

func (m *MockTransport) Scan(ctx context.Context, handle func(Advertisement)) error {
	m.mu.Lock()
	ads := append([]Advertisement(nil), m.Advertisements...)
	m.mu.Unlock()
	for _, a := range ads {
		if ctx.Err() != nil {
			return nil
		}
		handle(a)
	}
	<-ctx.Done()
	return nil
}

func (m *MockTransport) Dial(ctx context.Context, address string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dials++
	if m.DialErr != nil && (m.DialFailures == 0 || m.dials <= m.DialFailures) {
		debug.Trace("MOCK dial %s failed (attempt %d)", address, m.dials)
		return nil, m.DialErr
	}
	debug.Trace("MOCK dial %s", address)
	c := &mockConn{
		chars: append([]string(nil), m.Characteristics...),
		subs:  make(map[string]NotificationHandler),
		done:  make(chan struct{}),
	}
	m.conn = c
	return c, nil
}

func (m *MockTransport) Close() error { return nil }

// Emit delivers data on characteristic to the live connection. It reports
// false if nothing is subscribed.
func (m *MockTransport) Emit(characteristic string, data []byte) bool {
	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()
	if c == nil {
		return false
	}
	return c.emit(characteristic, data)
}

// Drop simulates a link loss on the live connection.
func (m *MockTransport) Drop() {
	m.mu.Lock()
	c := m.conn
	m.conn = nil
	if c != nil {
		m.stale = c
	}
	m.mu.Unlock()
	if c != nil {
		debug.Trace("MOCK link dropped")
		c.Close()
	}
}

// EmitStale invokes the handler registered on the most recently dropped
// connection, as a late callback from a torn-down link would. It reports
// false if there is no such handler.
func (m *MockTransport) EmitStale(characteristic string, data []byte) bool {
	m.mu.Lock()
	c := m.stale
	m.mu.Unlock()
	if c == nil {
		return false
	}
	c.mu.Lock()
	h, ok := c.subs[event.CanonicalUUID(characteristic)]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(append([]byte(nil), data...))
	return true
}

// Connected reports whether a connection is live.
func (m *MockTransport) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return false
	}
	select {
	case <-m.conn.done:
		return false
	default:
		return true
	}
}

// Simulate presses the button every interval (a 4000 press followed by a
// 0000 release) until ctx is done.
func (m *MockTransport) Simulate(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			var char string
			if len(m.Characteristics) > 0 {
				char = m.Characteristics[0]
			}
			m.mu.Unlock()
			m.Emit(char, []byte{0x40, 0x00})
			m.Emit(char, []byte{0x00, 0x00})
		}
	}
}

type mockConn struct {
	mu     sync.Mutex
	chars  []string
	subs   map[string]NotificationHandler
	done   chan struct{}
	closed bool
}

func (c *mockConn) NotifyCharacteristics() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrNotConnected
	}
	return append([]string(nil), c.chars...), nil
}

func (c *mockConn) Subscribe(characteristic string, h NotificationHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNotConnected
	}
	want := event.CanonicalUUID(characteristic)
	for _, ch := range c.chars {
		if event.CanonicalUUID(ch) == want {
			c.subs[want] = h
			return nil
		}
	}
	return errors.New("characteristic " + characteristic + " not found on peripheral")
}

func (c *mockConn) emit(characteristic string, data []byte) bool {
	c.mu.Lock()
	h, ok := c.subs[event.CanonicalUUID(characteristic)]
	closed := c.closed
	c.mu.Unlock()
	if closed || !ok {
		return false
	}
	h(append([]byte(nil), data...))
	return true
}

func (c *mockConn) Disconnected() <-chan struct{} { return c.done }

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}
