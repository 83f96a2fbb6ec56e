package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shuttercam/shuttercam/internal/event"
	"github.com/shuttercam/shuttercam/internal/logic/dispatch"
)

type fakeCapturer struct {
	mu     sync.Mutex
	labels []string
	err    error
}

func (f *fakeCapturer) Trigger(ctx context.Context, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.labels = append(f.labels, label)
	return nil
}

func newTestServer() (*Server, *StatusBroadcaster) {
	b := NewStatusBroadcaster()
	return NewServer("127.0.0.1:0", b, nil), b
}

func TestHandleCapture_Accepted(t *testing.T) {
	s, _ := newTestServer()
	fc := &fakeCapturer{}
	s.SetCapturer(fc)

	req := httptest.NewRequest(http.MethodPost, "/capture", strings.NewReader(`{"label":"remote"}`))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body=%s", rec.Code, rec.Body)
	}
	if len(fc.labels) != 1 || fc.labels[0] != "remote" {
		t.Errorf("labels = %v", fc.labels)
	}
}

func TestHandleCapture_EmptyBodyDefaultsLabel(t *testing.T) {
	s, _ := newTestServer()
	fc := &fakeCapturer{}
	s.SetCapturer(fc)

	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capture", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(fc.labels) != 1 || fc.labels[0] != "web" {
		t.Errorf("labels = %v, want [web]", fc.labels)
	}
}

func TestHandleCapture_NotConfigured(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleCapture_Busy(t *testing.T) {
	s, _ := newTestServer()
	s.SetCapturer(&fakeCapturer{err: dispatch.ErrBusy})
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestHandleCapture_Failure(t *testing.T) {
	s, _ := newTestServer()
	s.SetCapturer(&fakeCapturer{err: errors.New("boom")})
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHandleCapture_InvalidJSON(t *testing.T) {
	s, _ := newTestServer()
	s.SetCapturer(&fakeCapturer{})
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capture", strings.NewReader("{nope")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleCapture_OversizedBody(t *testing.T) {
	s, _ := newTestServer()
	s.SetCapturer(&fakeCapturer{})
	body := `{"label":"` + strings.Repeat("x", 2*maxBodyBytes) + `"}`
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capture", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleCapture_GetNotAllowed(t *testing.T) {
	s, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/capture", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	s, b := newTestServer()
	b.Publish(event.Activity{Kind: event.KindState, Outcome: "subscribed", Profile: "p1s"})

	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}
	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != "subscribed" || st.Profile != "p1s" {
		t.Errorf("status = %+v", st)
	}
}

func TestStatusCORS(t *testing.T) {
	b := NewStatusBroadcaster()
	s := NewServer("127.0.0.1:0", b, []string{"http://printer.local"})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://printer.local")
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://printer.local" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer()
	// Generate at least one labelled request first.
	s.Mux().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/status", nil))

	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "shuttercam_http_requests_total") {
		t.Error("metrics body missing http request counter")
	}
}

func TestStatusStream(t *testing.T) {
	s, b := newTestServer()
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/status/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content-type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, err = %v", line, err)
	}

	// The subscription exists once the connected comment is flushed.
	b.Publish(event.Activity{Kind: event.KindCapture, Label: "manual_button"})

	for {
		line, err = r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	var a event.Activity
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Label != "manual_button" {
		t.Errorf("label = %q", a.Label)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/status"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
