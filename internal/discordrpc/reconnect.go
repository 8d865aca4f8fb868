package discordrpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Session owns a Client's connect/read/reconnect lifecycle. On every
// successful (re)connect it invokes onReconnect so the caller can push the
// current engine-state activity rather than any queued intermediate one
// (§4.3, testable property #7).
type Session struct {
	client     *Client
	logger     *logrus.Logger
	onReconnect func()
}

// NewSession wraps a Client with the reconnect-with-backoff loop.
func NewSession(client *Client, logger *logrus.Logger, onReconnect func()) *Session {
	return &Session{client: client, logger: logger, onReconnect: onReconnect}
}

// Run drives connect -> read loop -> backoff-reconnect until ctx is done.
// The daemon never exits because Discord is absent (§4.3, §7): every error
// just feeds back into the backoff loop.
func (s *Session) Run(ctx context.Context) {
	bo := newReconnectBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.client.Connect(); err != nil {
			attempt := s.client.Tracker().IncrementAttempt()
			s.logger.WithError(err).WithField("attempt", attempt).Debug("discord rpc: connect failed, backing off")
			if !sleepCtx(ctx, bo.Duration()) {
				return
			}
			continue
		}

		bo.Reset()
		s.logger.Info("discord rpc: connected")
		if s.onReconnect != nil {
			s.onReconnect()
		}

		err := s.client.ReadLoop()
		s.logger.WithError(err).Warn("discord rpc: session ended, reconnecting")

		if !sleepCtx(ctx, bo.Duration()) {
			return
		}
	}
}

// Shutdown performs the best-effort Clear-then-close described in §5,
// bounded by a short timeout so shutdown never hangs on a wedged transport.
func (s *Session) Shutdown(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		if s.client.Connected() {
			_ = s.client.Clear()
		}
		s.client.Disconnect()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("discord rpc: shutdown clear timed out")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
