package scheduler

import (
	"testing"
	"time"

	"presence-bridge/internal/config"
	"presence-bridge/pkg/models"
)

func testIntervals() config.IntervalConfig {
	return config.IntervalConfig{
		PlayingPollMs:       1000,
		PausedPollMs:        7000,
		StoppedPollMs:       30000,
		PresenceMinUpdateMs: 15000,
		DebounceMs:          500,
	}
}

func TestNextPollDelay(t *testing.T) {
	s := New(testIntervals())

	playing := models.StatePlaying
	paused := models.StatePaused
	stopped := models.StateStopped

	if got := s.NextPollDelay(&playing); got != 1000*time.Millisecond {
		t.Errorf("playing delay = %v, want 1s", got)
	}
	if got := s.NextPollDelay(&paused); got != 7000*time.Millisecond {
		t.Errorf("paused delay = %v, want 7s", got)
	}
	if got := s.NextPollDelay(&stopped); got != 30000*time.Millisecond {
		t.Errorf("stopped delay = %v, want 30s", got)
	}
	if got := s.NextPollDelay(nil); got != 30000*time.Millisecond {
		t.Errorf("nil-state delay = %v, want 30s", got)
	}
}

func TestMayPushTrackAndStateTransitionUnconditional(t *testing.T) {
	s := New(testIntervals())
	now := time.Now()
	lastPush := now // zero gap

	if !s.MayPush(now, lastPush, models.ChangeTrack) {
		t.Error("TrackChange should always be allowed")
	}
	if !s.MayPush(now, lastPush, models.ChangeStateTransition) {
		t.Error("StateTransition should always be allowed")
	}
}

func TestMayPushThrottlesCosmeticChanges(t *testing.T) {
	s := New(testIntervals())
	now := time.Now()
	lastPush := now.Add(-5 * time.Second)

	if s.MayPush(now, lastPush, models.ChangePositionDrift) {
		t.Error("PositionDrift within min-update interval should be denied")
	}

	lastPush = now.Add(-16 * time.Second)
	if !s.MayPush(now, lastPush, models.ChangePositionDrift) {
		t.Error("PositionDrift past min-update interval should be allowed")
	}
}

func TestMayPushNoChangeDenied(t *testing.T) {
	s := New(testIntervals())
	now := time.Now()
	if s.MayPush(now, now, models.ChangeNoChange) {
		t.Error("NoChange should never push")
	}
}
