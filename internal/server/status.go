package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// StatusSource supplies the snapshot served at /status.
type StatusSource interface {
	Snapshot() models.StatusSnapshot
}

// StatusHandler serves the agent status as JSON.
type StatusHandler struct {
	source StatusSource
}

func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// Routes returns the HTTP routes this handler serves.
func (h *StatusHandler) Routes() []string {
	return []string{"/status"}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := shared.MarshalJSON(h.source.Snapshot(), false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// SyncControl starts and stops syncing on a running agent.
type SyncControl interface {
	Pause()
	Resume()
	SyncNow()
}

// Agent is the running agent as seen by the status server.
type Agent interface {
	StatusSource
	SyncControl
}

// syncAction answers a control request once the command has been posted.
//
// Commands are asynchronous, so the reply is 202 and /status shows the outcome.
func syncAction(name string, fn func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fn()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"action":%q}`, name)
	})
}

// NewStatusServer builds the router for /status, /metrics and the POST
// /sync/pause, /sync/resume and /sync/now controls.
func NewStatusServer(agent Agent, logger *log.Logger) *BasicRouter {
	router := NewBasicRouter()
	router.Use(Recoverer(logger), RequestLogger(logger))
	router.Handle(http.MethodGet, "/status", NewStatusHandler(agent))
	router.Handle(http.MethodGet, "/metrics", promhttp.Handler())
	router.Handle(http.MethodPost, "/sync/pause", syncAction("pause", agent.Pause))
	router.Handle(http.MethodPost, "/sync/resume", syncAction("resume", agent.Resume))
	router.Handle(http.MethodPost, "/sync/now", syncAction("now", agent.SyncNow))
	return router
}

// HTTPServer runs a handler on a TCP address until its context ends.
type HTTPServer struct {
	srv    *http.Server
	logger *log.Logger
}

// NewHTTPServer creates a server for handler on host:port.
func NewHTTPServer(host string, port int, handler http.Handler, logger *log.Logger) *HTTPServer {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &HTTPServer{
		srv: &http.Server{
			Addr:              net.JoinHostPort(host, fmt.Sprint(port)),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: shared.WithLogger(logger, "component", "server"),
	}
}

// Addr returns the configured listen address.
func (s *HTTPServer) Addr() string { return s.srv.Addr }

// Serve accepts connections on ln until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("serving status", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err, ok := <-serverErrors:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("error shutting down server", "err", err)
		return err
	}
	<-serverErrors
	return nil
}

// ListenAndServe listens on the configured address and calls [HTTPServer.Serve].
func (s *HTTPServer) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}
