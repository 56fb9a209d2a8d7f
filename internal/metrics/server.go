package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// NewRouter serves /metrics and /healthz.
func NewRouter() http.Handler {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Method(http.MethodGet, "/metrics", Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Server exposes the metrics router for the duration of a run.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
	done   chan struct{}
}

// Start listens on addr in the background.
func Start(addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return s
}

// Shutdown stops the server and waits for the listener goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
