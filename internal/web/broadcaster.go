package web

import (
	"encoding/json"
	"sync"

	"github.com/shuttercam/shuttercam/internal/event"
)

// DefaultHistory is the number of recent activities kept for /status.
const DefaultHistory = 50

// StatusBroadcaster distributes session activities to SSE clients and keeps
// a short history plus the latest link state for the status endpoint.
// It implements event.Sink.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	history []event.Activity
	limit   int
	state   string
	profile string
	session string
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
		limit:   DefaultHistory,
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Publish records a and sends it as JSON to all subscribed clients.
// Slow clients may miss messages (non-blocking, buffered).
func (b *StatusBroadcaster) Publish(a event.Activity) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.Lock()
	defer b.mu.Unlock()
	if a.Kind == event.KindState {
		b.state = a.Outcome
	}
	if a.Profile != "" {
		b.profile = a.Profile
	}
	if a.Session != "" {
		b.session = a.Session
	}
	b.history = append(b.history, a)
	if over := len(b.history) - b.limit; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// Status is the body of GET /status.
type Status struct {
	Profile  string           `json:"profile"`
	Session  string           `json:"session"`
	State    string           `json:"state"`
	Clients  int              `json:"clients"`
	Activity []event.Activity `json:"activity"`
}

// Snapshot returns the current status with the most recent activity last.
func (b *StatusBroadcaster) Snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	state := b.state
	if state == "" {
		state = "idle"
	}
	return Status{
		Profile:  b.profile,
		Session:  b.session,
		State:    state,
		Clients:  len(b.clients),
		Activity: append([]event.Activity{}, b.history...),
	}
}
