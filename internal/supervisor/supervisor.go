// Package supervisor wires the Provider registry, Scheduler, Event Engine
// and Discord RPC session into the daemon's main run loop, and owns
// graceful shutdown (spec §5, §7).
package supervisor

import (
	"context"
	"sync"
	"time"

	"presence-bridge/internal/config"
	"presence-bridge/internal/connstate"
	"presence-bridge/internal/discordrpc"
	"presence-bridge/internal/engine"
	"presence-bridge/internal/provider"
	"presence-bridge/internal/scheduler"
	"presence-bridge/pkg/models"

	"github.com/sirupsen/logrus"
)

// Supervisor owns one complete poll/engine/RPC pipeline for one Discord
// presence slot.
type Supervisor struct {
	cfgWatcher *config.Watcher
	registry   *provider.Registry
	scheduler  *scheduler.Scheduler
	engine     *engine.Engine
	client     *discordrpc.Client
	session    *discordrpc.Session
	tracker    *connstate.Tracker
	logger     *logrus.Logger

	mu               sync.RWMutex
	lastActivity     *models.ActivityPayload
	lastDecisionKind models.DecisionKind
	lastProviderName string
}

// New wires a Supervisor from its already-constructed collaborators.
func New(cfgWatcher *config.Watcher, registry *provider.Registry, buttons engine.ButtonBuilder, logger *logrus.Logger) *Supervisor {
	if logger == nil {
		logger = logrus.New()
	}

	cfg := cfgWatcher.Current()
	sched := scheduler.New(cfg.Intervals)
	eng := engine.New(sched, buttons)

	tracker := connstate.New()
	client := discordrpc.NewClient(cfg.DiscordAppID, logger, tracker)

	s := &Supervisor{
		cfgWatcher: cfgWatcher,
		registry:   registry,
		scheduler:  sched,
		engine:     eng,
		client:     client,
		tracker:    tracker,
		logger:     logger,
	}
	s.session = discordrpc.NewSession(client, logger, s.resendCurrent)
	return s
}

// Tracker implements diagnostics.StatusSource.
func (s *Supervisor) Tracker() *connstate.Tracker { return s.tracker }

// LastDecisionKind implements diagnostics.StatusSource.
func (s *Supervisor) LastDecisionKind() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.lastDecisionKind {
	case models.DecisionSetActivity:
		return "set_activity"
	case models.DecisionClear:
		return "clear"
	default:
		return "no_op"
	}
}

// ProviderName implements diagnostics.StatusSource.
func (s *Supervisor) ProviderName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastProviderName
}

// Run polls the Provider registry at the Scheduler's adaptive cadence,
// drives it through the Event Engine, and applies the resulting Decision to
// the Discord RPC session, until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	go s.session.Run(ctx)

	delay := time.Duration(0)
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.session.Shutdown(3 * time.Second)
			return
		case <-timer.C:
		}

		cfg := s.cfgWatcher.Current()
		s.scheduler.SetIntervals(cfg.Intervals)

		snap := s.registry.Poll(ctx)
		now := time.Now()
		decision := s.engine.Process(now, cfg, snap)
		s.apply(decision)

		s.mu.Lock()
		s.lastProviderName = snap.Provider
		s.mu.Unlock()

		delay = s.scheduler.NextPollDelay(&snap.State)
	}
}

// apply sends a non-NoOp Decision to Discord (if connected) and remembers it
// so a future reconnect can resend the current state rather than anything
// queued while disconnected (§4.3 testable property #7).
func (s *Supervisor) apply(decision models.Decision) {
	switch decision.Kind {
	case models.DecisionSetActivity:
		act := decision.Activity
		s.mu.Lock()
		s.lastActivity = &act
		s.lastDecisionKind = models.DecisionSetActivity
		s.mu.Unlock()

		if s.client.Connected() {
			if err := s.client.SetActivity(act); err != nil {
				s.logger.WithError(err).Warn("supervisor: failed to push activity")
			}
		}
	case models.DecisionClear:
		s.mu.Lock()
		s.lastActivity = nil
		s.lastDecisionKind = models.DecisionClear
		s.mu.Unlock()

		if s.client.Connected() {
			if err := s.client.Clear(); err != nil {
				s.logger.WithError(err).Warn("supervisor: failed to clear activity")
			}
		}
	case models.DecisionNoOp:
		// nothing to push
	}
}

// resendCurrent is the Session's onReconnect hook: it re-renders whatever
// the Event Engine currently believes is true, never a stale queued frame.
func (s *Supervisor) resendCurrent() {
	s.mu.RLock()
	kind := s.lastDecisionKind
	act := s.lastActivity
	s.mu.RUnlock()

	switch kind {
	case models.DecisionSetActivity:
		if act != nil {
			if err := s.client.SetActivity(*act); err != nil {
				s.logger.WithError(err).Warn("supervisor: failed to resend activity after reconnect")
			}
		}
	case models.DecisionClear:
		if err := s.client.Clear(); err != nil {
			s.logger.WithError(err).Warn("supervisor: failed to resend clear after reconnect")
		}
	}
}
