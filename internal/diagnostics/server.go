// Package diagnostics serves the optional local /health and /status HTTP
// endpoints a user can poll to see what a running daemon is currently doing,
// without giving any client control over the presence it reports (spec §6,
// §11). The `presence-bridge status` CLI command does not use them; it polls
// the Providers itself.
package diagnostics

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"presence-bridge/internal/connstate"

	"github.com/sirupsen/logrus"
)

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is the /status response body: a snapshot of what the daemon is
// currently mirroring to Discord.
type Status struct {
	Timestamp        time.Time          `json:"timestamp"`
	DiscordConnected bool               `json:"discordConnected"`
	Connection       connstate.Snapshot `json:"connection"`
	LastDecisionKind string             `json:"lastDecisionKind"`
	ProviderName     string             `json:"providerName,omitempty"`
}

// StatusSource is whatever the supervisor exposes for /status to read.
// Reading it must never block on, or mutate, the poll loop.
type StatusSource interface {
	Tracker() *connstate.Tracker
	LastDecisionKind() string
	ProviderName() string
}

// Server serves the diagnostics HTTP endpoints.
type Server struct {
	addr   string
	logger *logrus.Logger
	source StatusSource

	httpServer *http.Server
}

// New creates a diagnostics Server bound to addr (host:port). It does not
// start listening until Run is called.
func New(addr string, source StatusSource, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{addr: addr, logger: logger, source: source}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	return s
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthStatus{Status: "healthy", Timestamp: time.Now()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	tracker := s.source.Tracker()
	snap := tracker.Snapshot()

	status := Status{
		Timestamp:        time.Now(),
		DiscordConnected: snap.Connected,
		Connection:       snap,
		LastDecisionKind: s.source.LastDecisionKind(),
		ProviderName:     s.source.ProviderName(),
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.WithError(err).Warn("diagnostics: failed to encode /status response")
	}
}
