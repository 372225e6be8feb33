// Package admin serves the operator-facing HTTP surface (component I):
// /healthz and /metrics, on a port separate from the DMTP protocol
// listeners. Router construction and middleware follow the teacher
// repository's top-level server.go: a gorilla/mux router wrapped in
// gorilla/handlers' compression, CORS and access-logging middleware.
package admin

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opendmtp/dmtp-backend/pkg/log"
)

// HealthFunc reports whether the server is ready to serve traffic.
type HealthFunc func() error

// Server is the admin HTTP surface.
type Server struct {
	http *http.Server
}

// New builds the admin server listening on addr. health is consulted by
// /healthz on every request.
func New(addr string, health HealthFunc) *Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Use(handlers.CompressHandler)
	r.Use(handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet}),
		handlers.AllowedOrigins([]string{"*"})))

	logged := handlers.CustomLoggingHandler(log.InfoWriter, r, func(w io.Writer, params handlers.LogFormatterParams) {
		log.Finfof(w, "%s %s (Response: %d, Size: %d)", params.Request.Method, params.URL.RequestURI(), params.StatusCode, params.Size)
	})

	return &Server{http: &http.Server{
		Addr:         addr,
		Handler:      logged,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

// Serve blocks, running the admin HTTP server until Shutdown is called.
func (s *Server) Serve() error {
	log.Infof("admin: listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
