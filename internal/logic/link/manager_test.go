package link

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shuttercam/shuttercam/internal/event"
	"github.com/shuttercam/shuttercam/internal/hw/ble"
)

const report = "00002a4d-0000-1000-8000-00805f9b34fb"

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) add(s State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) snapshot() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func testConfig(log *stateLog) Config {
	return Config{
		Characteristic: report,
		ConnectTimeout: 200 * time.Millisecond,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		OnState:        log.add,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recv(t *testing.T, ch <-chan event.Notification) event.Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatal("stream closed")
		}
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return event.Notification{}
}

func TestOpen_DeliversInOrder(t *testing.T) {
	mock := ble.NewMockTransport()
	m := NewManager(mock, testConfig(&stateLog{}))
	stream, err := m.Open(context.Background(), "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if m.State() != Subscribed {
		t.Fatalf("state = %s, want subscribed", m.State())
	}
	mock.Emit(report, []byte{0x40, 0x00})
	mock.Emit(report, []byte{0x00, 0x00})
	mock.Emit(report, []byte{0x40, 0x00})

	want := []string{"4000", "0000", "4000"}
	for i, w := range want {
		n := recv(t, stream)
		if n.Hex() != w {
			t.Errorf("notification %d = %s, want %s", i, n.Hex(), w)
		}
		if n.Characteristic != report {
			t.Errorf("characteristic = %q", n.Characteristic)
		}
		if n.At.IsZero() {
			t.Error("timestamp not set")
		}
	}
}

func TestOpen_ConnectFailure(t *testing.T) {
	mock := ble.NewMockTransport()
	dialErr := errors.New("device not found")
	mock.DialErr = dialErr

	log := &stateLog{}
	cfg := testConfig(log)
	cfg.ConnectTimeout = 50 * time.Millisecond
	m := NewManager(mock, cfg)

	_, err := m.Open(context.Background(), "AA")
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConnectError, got %v", err)
	}
	if !errors.Is(err, dialErr) {
		t.Errorf("ConnectError should wrap the transport error: %v", err)
	}
	if ce.Attempts < 2 {
		t.Errorf("expected retries within the timeout, got %d attempt(s)", ce.Attempts)
	}
	if m.State() != Disconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
}

func TestOpen_RetriesUntilDeviceWakes(t *testing.T) {
	mock := ble.NewMockTransport()
	mock.DialErr = errors.New("asleep")
	mock.DialFailures = 3

	m := NewManager(mock, testConfig(&stateLog{}))
	if _, err := m.Open(context.Background(), "AA"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()
	if mock.Dials() != 4 {
		t.Errorf("dials = %d, want 4", mock.Dials())
	}
}

func TestOpen_Twice(t *testing.T) {
	m := NewManager(ble.NewMockTransport(), testConfig(&stateLog{}))
	if _, err := m.Open(context.Background(), "AA"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()
	if _, err := m.Open(context.Background(), "AA"); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen, got %v", err)
	}
}

func TestReconnect_AfterLinkLoss(t *testing.T) {
	mock := ble.NewMockTransport()
	log := &stateLog{}
	m := NewManager(mock, testConfig(log))
	stream, err := m.Open(context.Background(), "AA")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	mock.Emit(report, []byte{0x40, 0x00})
	if n := recv(t, stream); n.Hex() != "4000" {
		t.Fatalf("first = %s", n.Hex())
	}

	mock.Drop()
	waitFor(t, "reconnect", func() bool { return mock.Dials() >= 2 && m.State() == Subscribed })

	mock.Emit(report, []byte{0x80, 0x00})
	if n := recv(t, stream); n.Hex() != "8000" {
		t.Fatalf("after reconnect got %s, want 8000 (no replay)", n.Hex())
	}

	states := log.snapshot()
	want := []State{Connecting, Subscribed, Degraded, Connecting, Subscribed}
	if len(states) < len(want) {
		t.Fatalf("states = %v, want prefix %v", states, want)
	}
	for i, s := range want {
		if states[i] != s {
			t.Fatalf("states = %v, want prefix %v", states, want)
		}
	}
}

func TestReconnect_StaleHandlerNotDelivered(t *testing.T) {
	mock := ble.NewMockTransport()
	m := NewManager(mock, testConfig(&stateLog{}))
	stream, err := m.Open(context.Background(), "AA")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	mock.Drop()
	waitFor(t, "reconnect", func() bool { return mock.Dials() >= 2 && m.State() == Subscribed })

	// A late callback from the torn-down connection.
	if !mock.EmitStale(report, []byte{0x40, 0x00}) {
		t.Fatal("old connection kept no handler")
	}
	mock.Emit(report, []byte{0x80, 0x00})
	if n := recv(t, stream); n.Hex() != "8000" {
		t.Fatalf("got %s from the old connection, want 8000", n.Hex())
	}
}

func TestDegraded_StaleHandlerNotDelivered(t *testing.T) {
	mock := ble.NewMockTransport()
	log := &stateLog{}
	cfg := testConfig(log)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	m := NewManager(mock, cfg)
	stream, err := m.Open(context.Background(), "AA")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	mock.Drop()
	waitFor(t, "degraded", func() bool { return m.State() == Degraded })

	if !mock.EmitStale(report, []byte{0x40, 0x00}) {
		t.Fatal("old connection kept no handler")
	}
	select {
	case n, ok := <-stream:
		if ok {
			t.Fatalf("delivered %s while degraded", n.Hex())
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconnect_IdleTimeout(t *testing.T) {
	mock := ble.NewMockTransport()
	cfg := testConfig(&stateLog{})
	cfg.IdleTimeout = 20 * time.Millisecond
	m := NewManager(mock, cfg)
	if _, err := m.Open(context.Background(), "AA"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	waitFor(t, "idle reconnect", func() bool { return mock.Dials() >= 2 })
}

func TestCancel_ClosesStreamAndReleases(t *testing.T) {
	mock := ble.NewMockTransport()
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(mock, testConfig(&stateLog{}))
	stream, err := m.Open(ctx, "AA")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	cancel()
	for range stream {
	}
	if mock.Connected() {
		t.Error("connection not released after cancel")
	}
	if m.State() != Disconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
	m.Close() // no-op after cancel
}

func TestClose_ReleasesSynchronously(t *testing.T) {
	mock := ble.NewMockTransport()
	m := NewManager(mock, testConfig(&stateLog{}))
	if _, err := m.Open(context.Background(), "AA"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.Close()
	if mock.Connected() {
		t.Error("connection still live after Close")
	}
	m.Close()
}

func TestSubscribeAll(t *testing.T) {
	mock := ble.NewMockTransport()
	mock.Characteristics = []string{report, "00002a19-0000-1000-8000-00805f9b34fb"}
	cfg := testConfig(&stateLog{})
	cfg.Characteristic = ""
	cfg.SubscribeAll = true
	m := NewManager(mock, cfg)

	stream, err := m.Open(context.Background(), "AA")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	if got := m.Subscribed(); len(got) != 2 {
		t.Fatalf("subscribed = %v", got)
	}
	mock.Emit("00002a19-0000-1000-8000-00805f9b34fb", []byte{0x64})
	if n := recv(t, stream); n.Characteristic != "00002a19-0000-1000-8000-00805f9b34fb" {
		t.Errorf("characteristic = %s", n.Characteristic)
	}
}

func TestSubscribeAll_NoCharacteristics(t *testing.T) {
	mock := ble.NewMockTransport()
	mock.Characteristics = nil
	cfg := testConfig(&stateLog{})
	cfg.SubscribeAll = true
	m := NewManager(mock, cfg)

	_, err := m.Open(context.Background(), "AA")
	if !errors.Is(err, ErrNoCharacteristics) {
		t.Fatalf("expected ErrNoCharacteristics, got %v", err)
	}
	if mock.Dials() != 1 {
		t.Errorf("dials = %d, missing characteristics must not be retried", mock.Dials())
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Disconnected: "disconnected", Connecting: "connecting", Subscribed: "subscribed", Degraded: "degraded", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
