// Package scheduler decides the adaptive polling cadence and gates presence
// update emission (spec §4.1).
package scheduler

import (
	"time"

	"presence-bridge/internal/config"
	"presence-bridge/pkg/models"
)

// Scheduler computes the next poll delay for the current playback state and
// enforces the minimum inter-update interval to Discord.
type Scheduler struct {
	intervals config.IntervalConfig
}

// New creates a Scheduler bound to the given interval configuration.
func New(intervals config.IntervalConfig) *Scheduler {
	return &Scheduler{intervals: intervals}
}

// SetIntervals swaps in a freshly reloaded interval configuration, applied
// to the next poll/throttle decision.
func (s *Scheduler) SetIntervals(intervals config.IntervalConfig) {
	s.intervals = intervals
}

// NextPollDelay returns the cadence for the given last-observed state
// (§4.1's table). A nil state (no snapshot observed yet) is treated like
// Stopped/Error.
func (s *Scheduler) NextPollDelay(state *models.PlaybackState) time.Duration {
	if state == nil {
		return time.Duration(s.intervals.StoppedPollMs) * time.Millisecond
	}

	switch *state {
	case models.StatePlaying:
		return time.Duration(s.intervals.PlayingPollMs) * time.Millisecond
	case models.StatePaused:
		return time.Duration(s.intervals.PausedPollMs) * time.Millisecond
	default:
		return time.Duration(s.intervals.StoppedPollMs) * time.Millisecond
	}
}

// MayPush implements the min-update gate (§4.1): user-visible transitions
// are allowed unconditionally, cosmetic refreshes are rate-limited to
// presence_min_update_ms.
func (s *Scheduler) MayPush(now, lastPushedAt time.Time, change models.ChangeKind) bool {
	switch change {
	case models.ChangeTrack, models.ChangeStateTransition:
		return true
	case models.ChangePositionDrift, models.ChangeMetadataRefresh:
		if lastPushedAt.IsZero() {
			return true
		}
		minInterval := time.Duration(s.intervals.PresenceMinUpdateMs) * time.Millisecond
		return now.Sub(lastPushedAt) >= minInterval
	default:
		return false
	}
}
