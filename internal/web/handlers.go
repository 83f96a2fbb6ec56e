package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/logic/dispatch"
)

const maxBodyBytes = 1 << 10

// Capturer fires a manual capture. *dispatch.Dispatcher satisfies it.
type Capturer interface {
	Trigger(ctx context.Context, label string) error
}

// CaptureRequest is the optional body of POST /capture.
type CaptureRequest struct {
	Label string `json:"label"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster

	mu       sync.RWMutex
	capturer Capturer
}

// NewHandlers creates handlers with the given dependencies.
// Until SetCapturer is called, POST /capture returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster) *Handlers {
	return &Handlers{Broadcaster: broadcaster}
}

// SetCapturer installs the capture target once a session is running.
func (h *Handlers) SetCapturer(c Capturer) {
	h.mu.Lock()
	h.capturer = c
	h.mu.Unlock()
}

func (h *Handlers) getCapturer() Capturer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.capturer
}

// HandleStatus returns the profile, link state and recent activity as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Broadcaster.Snapshot())
}

// HandleCapture handles POST /capture to fire the camera once.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
	}
	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = "web"
	}

	c := h.getCapturer()
	if c == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	if err := c.Trigger(r.Context(), label); err != nil {
		if errors.Is(err, dispatch.ErrBusy) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		debug.Errorf("web capture failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "label": label})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
