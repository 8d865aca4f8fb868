package engine

import (
	"testing"
	"time"

	"presence-bridge/internal/config"
	"presence-bridge/internal/scheduler"
	"presence-bridge/pkg/models"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.DiscordAppID = "123"
	cfg.Intervals.DebounceMs = 500
	cfg.Intervals.PresenceMinUpdateMs = 15000
	return cfg
}

func newTestEngine(cfg *config.Config) *Engine {
	return New(scheduler.New(cfg.Intervals), nil)
}

func ptr(v int64) *int64 { return &v }

func playing(trackID string, posMs int64, at time.Time) models.Snapshot {
	return models.Snapshot{
		State:      models.StatePlaying,
		Title:      trackID,
		Artist:     "artist",
		TrackID:    trackID,
		PositionMs: ptr(posMs),
		CapturedAt: at,
	}
}

func TestFirstSnapshotEmitsImmediately(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(cfg)
	t0 := time.Now()

	d := e.Process(t0, cfg, playing("A", 0, t0))
	if d.Kind != models.DecisionSetActivity {
		t.Fatalf("decision = %v, want SetActivity", d.Kind)
	}
	if d.Activity.TrackID != "A" {
		t.Errorf("track = %q, want A", d.Activity.TrackID)
	}
}

// Track flap within the debounce window must yield exactly one SetActivity,
// the initial one, per §4.2 testable property S3.
func TestTrackFlapWithinDebounceYieldsSingleSetActivity(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(cfg)
	t0 := time.Now()

	d1 := e.Process(t0, cfg, playing("A", 0, t0))
	if d1.Kind != models.DecisionSetActivity {
		t.Fatalf("d1 = %v, want SetActivity", d1.Kind)
	}

	t1 := t0.Add(100 * time.Millisecond)
	d2 := e.Process(t1, cfg, playing("B", 0, t1))
	if d2.Kind != models.DecisionNoOp {
		t.Fatalf("d2 = %v, want NoOp (debounced)", d2.Kind)
	}

	t2 := t1.Add(100 * time.Millisecond)
	d3 := e.Process(t2, cfg, playing("A", 0, t2))
	if d3.Kind != models.DecisionNoOp {
		t.Fatalf("d3 = %v, want NoOp", d3.Kind)
	}
}

func TestTrackChangePastDebounceEmitsSetActivity(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(cfg)
	t0 := time.Now()

	e.Process(t0, cfg, playing("A", 0, t0))

	t1 := t0.Add(100 * time.Millisecond)
	d2 := e.Process(t1, cfg, playing("B", 0, t1))
	if d2.Kind != models.DecisionNoOp {
		t.Fatalf("d2 = %v, want NoOp (debounced)", d2.Kind)
	}

	// Same candidate B observed again past the debounce window: should promote.
	t2 := t0.Add(600 * time.Millisecond)
	d3 := e.Process(t2, cfg, playing("B", 0, t2))
	if d3.Kind != models.DecisionSetActivity {
		t.Fatalf("d3 = %v, want SetActivity", d3.Kind)
	}
	if d3.Activity.TrackID != "B" {
		t.Errorf("track = %q, want B", d3.Activity.TrackID)
	}
}

// Natural position progression while Playing should be throttled to the
// min-update interval, never spamming SetActivity every poll.
func TestPositionDriftThrottled(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(cfg)
	t0 := time.Now()

	e.Process(t0, cfg, playing("A", 0, t0))

	t1 := t0.Add(1 * time.Second)
	d2 := e.Process(t1, cfg, playing("A", 1000, t1))
	if d2.Kind != models.DecisionNoOp {
		t.Fatalf("d2 = %v, want NoOp (throttled)", d2.Kind)
	}

	t2 := t0.Add(16 * time.Second)
	d3 := e.Process(t2, cfg, playing("A", 16000, t2))
	if d3.Kind != models.DecisionSetActivity {
		t.Fatalf("d3 = %v, want SetActivity (past min-update interval)", d3.Kind)
	}
}

// Entering Stopped/Error emits exactly one Clear; further Stopped polls are
// NoOp until playback resumes.
func TestStopEmitsSingleClear(t *testing.T) {
	cfg := testConfig()
	cfg.Intervals.DebounceMs = 0
	e := newTestEngine(cfg)
	t0 := time.Now()

	e.Process(t0, cfg, playing("A", 0, t0))

	t1 := t0.Add(1 * time.Second)
	stopped := models.Snapshot{State: models.StateStopped, CapturedAt: t1}
	if d := e.Process(t1, cfg, stopped); d.Kind != models.DecisionNoOp {
		t.Fatalf("first stop poll = %v, want NoOp (pending debounce candidate)", d.Kind)
	}
	d2 := e.Process(t1, cfg, stopped)
	if d2.Kind != models.DecisionClear {
		t.Fatalf("d2 = %v, want Clear", d2.Kind)
	}

	t2 := t1.Add(1 * time.Second)
	d3 := e.Process(t2, cfg, models.Snapshot{State: models.StateStopped, CapturedAt: t2})
	if d3.Kind != models.DecisionNoOp {
		t.Fatalf("d3 = %v, want NoOp", d3.Kind)
	}
}

// A seek (position jump larger than the drift tolerance) is a
// StateTransition: it debounces like any other StateTransition, but once
// past the debounce window it bypasses the min-update throttle entirely.
func TestSeekBypassesThrottle(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(cfg)
	t0 := time.Now()

	e.Process(t0, cfg, playing("A", 0, t0))

	t1 := t0.Add(1 * time.Second)
	d2 := e.Process(t1, cfg, playing("A", 90000, t1)) // jumped 90s in 1s of wall time
	if d2.Kind != models.DecisionNoOp {
		t.Fatalf("d2 = %v, want NoOp (debouncing seek)", d2.Kind)
	}

	t2 := t1.Add(600 * time.Millisecond)
	d3 := e.Process(t2, cfg, playing("A", 90600, t2)) // same seek candidate, position keeps advancing naturally
	if d3.Kind != models.DecisionSetActivity {
		t.Fatalf("d3 = %v, want SetActivity (seek promoted past debounce)", d3.Kind)
	}
}

// Resuming from Paused to Playing on the same track re-anchors the start
// timestamp to the current wall clock minus position. Debounce is set to
// zero so each StateTransition's second identical poll promotes immediately.
func TestResumeFromPauseReanchorsStartTimestamp(t *testing.T) {
	cfg := testConfig()
	cfg.Intervals.DebounceMs = 0
	e := newTestEngine(cfg)
	t0 := time.Now()

	d1 := e.Process(t0, cfg, playing("A", 0, t0))
	start1 := d1.Activity.Timestamps.StartUnix

	t1 := t0.Add(5 * time.Second)
	paused := playing("A", 5000, t1)
	paused.State = models.StatePaused
	if d := e.Process(t1, cfg, paused); d.Kind != models.DecisionNoOp {
		t.Fatalf("first pause poll = %v, want NoOp (pending debounce candidate)", d.Kind)
	}
	d2 := e.Process(t1, cfg, paused)
	if d2.Kind != models.DecisionSetActivity {
		t.Fatalf("d2 = %v, want SetActivity (pause transition promoted)", d2.Kind)
	}
	if d2.Activity.Timestamps != nil {
		t.Error("paused activity must omit timestamps")
	}

	t2 := t1.Add(3 * time.Second)
	resumed := playing("A", 5000, t2)
	if d := e.Process(t2, cfg, resumed); d.Kind != models.DecisionNoOp {
		t.Fatalf("first resume poll = %v, want NoOp (pending debounce candidate)", d.Kind)
	}
	d3 := e.Process(t2, cfg, resumed)
	if d3.Kind != models.DecisionSetActivity {
		t.Fatalf("d3 = %v, want SetActivity (resume promoted)", d3.Kind)
	}
	start3 := d3.Activity.Timestamps.StartUnix
	if start3 == start1 {
		t.Error("resume should re-anchor start timestamp, not keep the original")
	}
}

func TestIdempotentOnIdenticalSnapshot(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(cfg)
	t0 := time.Now()
	snap := playing("A", 0, t0)

	d1 := e.Process(t0, cfg, snap)
	if d1.Kind != models.DecisionSetActivity {
		t.Fatalf("d1 = %v, want SetActivity", d1.Kind)
	}

	d2 := e.Process(t0, cfg, snap)
	if d2.Kind != models.DecisionNoOp {
		t.Fatalf("d2 = %v, want NoOp (identical snapshot)", d2.Kind)
	}
}
