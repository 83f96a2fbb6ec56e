package metrics

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDecisionCounter(t *testing.T) {
	before := testutil.ToFloat64(decisionsTotal.WithLabelValues("dispatched"))
	Decision("dispatched")
	Decision("dispatched")
	if got := testutil.ToFloat64(decisionsTotal.WithLabelValues("dispatched")) - before; got != 2 {
		t.Fatalf("dispatched delta = %v, want 2", got)
	}
}

func TestSetLinkStateIsExclusive(t *testing.T) {
	SetLinkState("subscribed")
	if v := testutil.ToFloat64(linkState.WithLabelValues("subscribed")); v != 1 {
		t.Errorf("subscribed = %v", v)
	}
	SetLinkState("degraded")
	if v := testutil.ToFloat64(linkState.WithLabelValues("subscribed")); v != 0 {
		t.Errorf("subscribed after degrade = %v", v)
	}
	if v := testutil.ToFloat64(linkState.WithLabelValues("degraded")); v != 1 {
		t.Errorf("degraded = %v", v)
	}
}

func TestCaptureResult(t *testing.T) {
	okBefore := testutil.ToFloat64(capturesTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(capturesTotal.WithLabelValues("error"))
	Capture(nil, 300*time.Millisecond)
	Capture(errors.New("boom"), time.Second)
	if d := testutil.ToFloat64(capturesTotal.WithLabelValues("ok")) - okBefore; d != 1 {
		t.Errorf("ok delta = %v", d)
	}
	if d := testutil.ToFloat64(capturesTotal.WithLabelValues("error")) - errBefore; d != 1 {
		t.Errorf("error delta = %v", d)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/items/{id}", http.MethodGet, "418"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/items/{id}", http.MethodGet, "418")) - before; got != 1 {
		t.Fatalf("route counter delta = %v, want 1", got)
	}
}

func TestExposedOnDefaultRegistry(t *testing.T) {
	Reconnect()
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !bytes.Contains(rr.Body.Bytes(), []byte("shuttercam_link_reconnects_total")) {
		t.Fatal("expected shuttercam_link_reconnects_total in /metrics output")
	}
}
