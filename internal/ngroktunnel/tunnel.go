// Package ngroktunnel optionally exposes the local diagnostics HTTP server
// through an ngrok tunnel, for checking presence-bridge status from another
// device. It is entirely optional: a nil *Tunnel is safe to call every
// method on and does nothing (spec §11 domain stack).
package ngroktunnel

import (
	"context"
	"fmt"
	"os"

	"presence-bridge/internal/config"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok/v2"
)

// Tunnel wraps an ngrok agent forwarding the diagnostics server.
type Tunnel struct {
	cfg    config.DiagnosticsConfig
	logger *logrus.Logger
	agent  ngrok.Agent
	fwd    ngrok.EndpointForwarder
}

// New creates a Tunnel. It returns (nil, nil) when ngrok is disabled in
// configuration, so callers can treat the nil case as "do nothing" rather
// than branching on a separate enabled flag everywhere.
func New(cfg config.DiagnosticsConfig, logger *logrus.Logger) (*Tunnel, error) {
	if !cfg.NgrokEnabled {
		return nil, nil
	}
	if logger == nil {
		logger = logrus.New()
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			logger.WithError(err).Warn("ngroktunnel: could not load .env file")
		}
	}

	authToken := cfg.NgrokAuthToken
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTHTOKEN")
	}
	if authToken == "" {
		return nil, fmt.Errorf("ngrok auth token not found: set diagnostics.ngrok_auth_token or NGROK_AUTHTOKEN")
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(authToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %w", err)
	}

	return &Tunnel{cfg: cfg, logger: logger, agent: agent}, nil
}

// Start forwards localAddress (the diagnostics server's bind address)
// through the ngrok agent. Safe to call on a nil Tunnel.
func (t *Tunnel) Start(ctx context.Context, localAddress string) error {
	if t == nil {
		return nil
	}

	fwd, err := t.agent.Forward(ctx, ngrok.WithUpstream(localAddress))
	if err != nil {
		return fmt.Errorf("failed to create ngrok tunnel: %w", err)
	}
	t.fwd = fwd

	t.logger.WithFields(logrus.Fields{
		"public_url": fwd.URL().String(),
		"local":      localAddress,
	}).Info("ngroktunnel: tunnel active")

	return nil
}

// PublicURL returns the tunnel's public URL, or "" if not started.
// Safe to call on a nil Tunnel.
func (t *Tunnel) PublicURL() string {
	if t == nil || t.fwd == nil {
		return ""
	}
	return t.fwd.URL().String()
}

// Stop closes the tunnel. Safe to call on a nil Tunnel.
func (t *Tunnel) Stop() error {
	if t == nil || t.fwd == nil {
		return nil
	}
	return t.fwd.Close()
}
