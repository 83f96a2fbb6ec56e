// Package link owns the BLE connection to the shutter button: connect,
// subscribe, detect loss and reconnect with backoff.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/event"
	"github.com/shuttercam/shuttercam/internal/hw/ble"
	"github.com/shuttercam/shuttercam/internal/metrics"
)

// Config tunes a Manager.
type Config struct {
	// Characteristic to subscribe to. Ignored when SubscribeAll is set.
	Characteristic string
	// SubscribeAll subscribes to every notify characteristic, best effort.
	SubscribeAll bool

	ConnectTimeout time.Duration // bound on the initial connection
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// IdleTimeout degrades a link that delivered nothing for this long.
	// Zero disables the check.
	IdleTimeout time.Duration
	BufferSize  int

	// OnState observes state changes. It runs on the goroutine making the
	// change and must not block.
	OnState func(State)
}

func (c *Config) defaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 2 * time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
}

type stopReason string

const (
	stopped        stopReason = ""
	lostDisconnect stopReason = "disconnect"
	lostIdle       stopReason = "idle"
)

// Manager maintains one logical link to a peripheral.
type Manager struct {
	transport ble.Transport
	cfg       Config

	state atomic.Int32
	gen   atomic.Uint64

	mu     sync.Mutex
	conn   ble.Conn
	active []string
	opened bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager returns a disconnected manager.
func NewManager(t ble.Transport, cfg Config) *Manager {
	cfg.defaults()
	m := &Manager{transport: t, cfg: cfg}
	metrics.SetLinkState(Disconnected.String())
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Subscribed returns the characteristics of the live connection.
func (m *Manager) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.active...)
}

func (m *Manager) setState(s State) {
	if State(m.state.Swap(int32(s))) == s {
		return
	}
	debug.Verbose("Link state: %s", s)
	metrics.SetLinkState(s.String())
	if m.cfg.OnState != nil {
		m.cfg.OnState(s)
	}
}

// Open connects to address and returns the notification stream. It retries
// with backoff until ConnectTimeout elapses and then returns a *ConnectError.
// The stream stays open across reconnects and is closed after Close or ctx
// cancellation, once the transport connection has been released.
func (m *Manager) Open(ctx context.Context, address string) (<-chan event.Notification, error) {
	m.mu.Lock()
	if m.opened {
		m.mu.Unlock()
		return nil, ErrAlreadyOpen
	}
	m.opened = true
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	raw := make(chan tagged, m.cfg.BufferSize)

	m.setState(Connecting)
	if err := m.connectInitial(runCtx, address, raw); err != nil {
		cancel()
		m.setState(Disconnected)
		m.mu.Lock()
		m.opened = false
		m.mu.Unlock()
		return nil, err
	}
	m.setState(Subscribed)

	out := make(chan event.Notification, m.cfg.BufferSize)
	done := make(chan struct{})
	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.run(runCtx, address, raw, out, done)
	return out, nil
}

// Close cancels the session and waits until the connection is released.
// Safe to call more than once or before Open.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) connectInitial(ctx context.Context, address string, raw chan<- tagged) error {
	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	var (
		attempts int
		lastErr  error
	)
	op := func() (struct{}, error) {
		attempts++
		err := m.connect(ctx, connectCtx, address, raw)
		if err == nil {
			return struct{}{}, nil
		}
		lastErr = err
		debug.Verbose("BLE connect failed (%s, attempt %d): %v", address, attempts, err)
		if errors.Is(err, ErrNoCharacteristics) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	debug.Info("Connecting to %s (timeout %s)", address, debug.Duration(m.cfg.ConnectTimeout))
	_, err := backoff.Retry(connectCtx, op,
		backoff.WithBackOff(m.newBackOff()),
		backoff.WithMaxElapsedTime(m.cfg.ConnectTimeout),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if lastErr == nil {
		lastErr = err
	}
	return &ConnectError{Address: address, Attempts: attempts, Err: lastErr}
}

func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.InitialBackoff
	bo.MaxInterval = m.cfg.MaxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	return bo
}

// connect dials and subscribes. dialCtx bounds the attempt; ctx is the
// session. On success the connection becomes the live one and a new
// generation starts; handlers of older generations go quiet.
func (m *Manager) connect(ctx, dialCtx context.Context, address string, raw chan<- tagged) error {
	conn, err := m.transport.Dial(dialCtx, address)
	if err != nil {
		return err
	}

	chars := []string{m.cfg.Characteristic}
	if m.cfg.SubscribeAll {
		chars, err = conn.NotifyCharacteristics()
		if err != nil {
			_ = conn.Close()
			return err
		}
		debug.Verbose("Notify characteristics discovered: %d", len(chars))
	}
	if len(chars) == 0 || chars[0] == "" {
		_ = conn.Close()
		return ErrNoCharacteristics
	}

	gen := m.gen.Add(1)
	var active []string
	for _, c := range chars {
		canon := event.CanonicalUUID(c)
		if err := conn.Subscribe(c, m.handler(ctx, gen, canon, raw)); err != nil {
			if !m.cfg.SubscribeAll {
				_ = conn.Close()
				return fmt.Errorf("subscribe %s: %w", canon, err)
			}
			debug.Verbose("Subscribe failed for %s: %v", canon, err)
			continue
		}
		active = append(active, canon)
	}
	if len(active) == 0 {
		_ = conn.Close()
		return fmt.Errorf("%w: could not subscribe to any of %d", ErrNoCharacteristics, len(chars))
	}
	if m.cfg.SubscribeAll {
		debug.Verbose("Subscribed to %d/%d notify characteristic(s)", len(active), len(chars))
	}

	m.mu.Lock()
	m.conn = conn
	m.active = active
	m.mu.Unlock()
	return nil
}

// tagged carries the connection generation a notification arrived on.
type tagged struct {
	gen uint64
	n   event.Notification
}

func (m *Manager) handler(ctx context.Context, gen uint64, characteristic string, raw chan<- tagged) ble.NotificationHandler {
	return func(data []byte) {
		if m.gen.Load() != gen {
			debug.Trace("Dropping notification from stale connection")
			return
		}
		n := event.Notification{
			Characteristic: characteristic,
			Data:           append([]byte(nil), data...),
			At:             time.Now(),
		}
		metrics.Notification(characteristic)
		select {
		case raw <- tagged{gen: gen, n: n}:
		case <-ctx.Done():
		}
	}
}

func (m *Manager) run(ctx context.Context, address string, raw chan tagged, out chan<- event.Notification, done chan struct{}) {
	defer close(done)
	defer close(out)
	defer m.release()

	for {
		reason := m.forward(ctx, raw, out)
		if reason == stopped {
			return
		}

		debug.Warn("Link degraded (%s); will reconnect", reason)
		metrics.Degraded(string(reason))
		m.gen.Add(1)
		m.dropConn()
		m.setState(Degraded)

		if !m.reconnect(ctx, address, raw) {
			return
		}
	}
}

// forward copies notifications to out until the connection is lost or the
// session ends.
func (m *Manager) forward(ctx context.Context, raw <-chan tagged, out chan<- event.Notification) stopReason {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	var idle <-chan time.Time
	var timer *time.Timer
	if m.cfg.IdleTimeout > 0 {
		timer = time.NewTimer(m.cfg.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return stopped
		case <-conn.Disconnected():
			return lostDisconnect
		case <-idle:
			return lostIdle
		case t := <-raw:
			if t.gen != m.gen.Load() {
				// Queued before the link was lost.
				continue
			}
			select {
			case out <- t.n:
			case <-ctx.Done():
				return stopped
			}
			if timer != nil {
				timer.Reset(m.cfg.IdleTimeout)
			}
		}
	}
}

// reconnect retries forever with exponential backoff. It returns false when
// the session ends first.
func (m *Manager) reconnect(ctx context.Context, address string, raw chan<- tagged) bool {
	bo := m.newBackOff()
	for attempt := 1; ; attempt++ {
		delay := bo.NextBackOff()
		if delay == backoff.Stop || delay > m.cfg.MaxBackoff {
			delay = m.cfg.MaxBackoff
		}
		debug.Verbose("Reconnecting to %s in %s (attempt %d)", address, debug.Duration(delay), attempt)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}

		m.setState(Connecting)
		metrics.Reconnect()
		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		err := m.connect(ctx, attemptCtx, address, raw)
		cancel()
		if err == nil {
			debug.Info("Reconnected to %s", address)
			m.setState(Subscribed)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		debug.Verbose("Reconnect failed: %v", err)
		m.setState(Degraded)
	}
}

func (m *Manager) dropConn() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.active = nil
	m.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (m *Manager) release() {
	m.gen.Add(1)
	m.dropConn()
	m.setState(Disconnected)
	debug.Verbose("Link released")
}
