package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shuttercam/shuttercam/internal/debug"
	"github.com/shuttercam/shuttercam/internal/metrics"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	origins  []string
	handlers *Handlers
}

// NewServer creates a server for addr. allowedOrigins configures CORS; when
// empty any origin may read the status endpoints.
func NewServer(addr string, broadcaster *StatusBroadcaster, allowedOrigins []string) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Server{
		addr:     addr,
		origins:  allowedOrigins,
		handlers: NewHandlers(broadcaster),
	}
}

// SetCapturer routes POST /capture to c.
func (s *Server) SetCapturer(c Capturer) {
	s.handlers.SetCapturer(c)
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware)

	r.Get("/status", s.handlers.HandleStatus)
	r.Get("/status/stream", s.handlers.HandleStatusStream)
	r.Post("/capture", s.handlers.HandleCapture)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web server listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
