// Package engine implements the Event Engine: the sanitize/classify/
// debounce/throttle/render state machine that turns raw Provider snapshots
// into Decisions for the Discord RPC client (spec §4.2).
package engine

import (
	"fmt"
	"sync"
	"time"

	"presence-bridge/internal/config"
	"presence-bridge/pkg/models"
)

// Scheduler is the subset of internal/scheduler.Scheduler the engine needs.
// Declared locally so the engine depends on a narrow interface rather than
// the concrete type.
type Scheduler interface {
	MayPush(now, lastPushedAt time.Time, change models.ChangeKind) bool
}

// ButtonBuilder resolves a clickable Rich Presence button for a snapshot.
// internal/buttons implements this; it is optional (engine works without one).
type ButtonBuilder interface {
	Build(snap models.Snapshot) (models.Button, bool)
}

// state is the Event Engine's private, mutex-guarded memory across polls.
type state struct {
	mu sync.Mutex

	lastSnapshot *models.Snapshot

	pendingCandidate *models.Snapshot
	pendingSince     time.Time

	currentTrackID     string
	startTimestampUnix int64

	lastPushedAt time.Time
}

// Engine owns the debounce/throttle/rendering pipeline. One Engine instance
// corresponds to one Discord presence slot.
type Engine struct {
	scheduler Scheduler
	buttons   ButtonBuilder

	st state
}

// New creates an Event Engine bound to the given Scheduler. buttons may be
// nil if button rendering is disabled or unavailable.
func New(scheduler Scheduler, buttons ButtonBuilder) *Engine {
	return &Engine{scheduler: scheduler, buttons: buttons}
}

// Process runs one full pass of the state machine over a freshly polled
// snapshot and returns the Decision to hand to the Discord RPC client.
func (e *Engine) Process(now time.Time, cfg *config.Config, raw models.Snapshot) models.Decision {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()

	sanitized := raw.Sanitize()
	change := classify(e.st.lastSnapshot, sanitized)

	effective, ok := e.debounce(now, cfg, change, sanitized)
	if !ok {
		return models.NoOp()
	}

	allowed := change == models.ChangeNone || e.scheduler.MayPush(now, e.st.lastPushedAt, change)

	e.commitTiming(now, effective)

	decision := models.NoOp()
	if allowed && change != models.ChangeNoChange {
		decision = e.render(cfg, effective)
	}

	e.st.lastSnapshot = &effective

	if decision.Kind != models.DecisionNoOp {
		e.st.lastPushedAt = now
	}

	return decision
}

// debounce implements §4.2 step 3. It returns (snapshot, true) once a
// candidate is ready to proceed to throttling/rendering, or (_, false) when
// the caller should return NoOp immediately because a change is still
// dwelling in its debounce window.
func (e *Engine) debounce(now time.Time, cfg *config.Config, change models.ChangeKind, sanitized models.Snapshot) (models.Snapshot, bool) {
	if change != models.ChangeTrack && change != models.ChangeStateTransition {
		// Cosmetic/no-op changes bypass debounce entirely.
		return sanitized, true
	}

	if e.st.pendingCandidate == nil || !candidateEquals(*e.st.pendingCandidate, sanitized) {
		cand := sanitized
		e.st.pendingCandidate = &cand
		e.st.pendingSince = now
		return models.Snapshot{}, false
	}

	debounceDur := time.Duration(cfg.Intervals.DebounceMs) * time.Millisecond
	if now.Sub(e.st.pendingSince) < debounceDur {
		return models.Snapshot{}, false
	}

	e.st.pendingCandidate = nil
	e.st.pendingSince = time.Time{}
	return sanitized, true
}

// candidateEquals compares only the identity-relevant fields (track and
// playback state) a debounce window cares about; position/captured_at churn
// between polls must not defeat candidate matching.
func candidateEquals(a, b models.Snapshot) bool {
	return a.TrackID == b.TrackID && a.State == b.State
}

// commitTiming implements §4.2 step 5: current_track_id and
// start_timestamp_unix bookkeeping.
func (e *Engine) commitTiming(now time.Time, snap models.Snapshot) {
	prevState := models.StateStopped
	prevTrackID := ""
	if e.st.lastSnapshot != nil {
		prevState = e.st.lastSnapshot.State
		prevTrackID = e.st.lastSnapshot.TrackID
	}

	if snap.State == models.StatePlaying {
		needsAnchor := prevState != models.StatePlaying || prevTrackID != snap.TrackID
		e.st.currentTrackID = snap.TrackID
		if needsAnchor {
			e.st.startTimestampUnix = computeStart(now, snap.PositionMs)
		}
		return
	}

	if snap.TrackID != "" {
		e.st.currentTrackID = snap.TrackID
		return
	}

	e.st.currentTrackID = ""
	e.st.startTimestampUnix = 0
}

func computeStart(now time.Time, positionMs *int64) int64 {
	var posSeconds int64
	if positionMs != nil {
		posSeconds = *positionMs / 1000
	}
	return now.Unix() - posSeconds
}

// render implements §4.2 step 6.
func (e *Engine) render(cfg *config.Config, snap models.Snapshot) models.Decision {
	if !snap.IsActive() {
		return models.Clear()
	}

	stateText := snap.Artist
	if snap.Album != "" && snap.Album != snap.Artist {
		stateText = fmt.Sprintf("%s — %s", snap.Artist, snap.Album)
	}

	var ts *models.Timestamps
	if snap.State == models.StatePlaying && e.st.startTimestampUnix != 0 {
		ts = &models.Timestamps{StartUnix: e.st.startTimestampUnix}
	}

	smallImage, smallText := cfg.Assets.SmallPlayImage, "Playing"
	if snap.State == models.StatePaused {
		smallImage, smallText = cfg.Assets.SmallPauseImage, "Paused"
	}

	var buttons []models.Button
	if cfg.EnableButtons && e.buttons != nil {
		if btn, ok := e.buttons.Build(snap); ok {
			buttons = []models.Button{btn}
		}
	}

	return models.SetActivity(models.ActivityPayload{
		Details:    snap.Title,
		StateText:  stateText,
		Timestamps: ts,
		Assets: models.Assets{
			LargeImage: cfg.Assets.LargeImage,
			LargeText:  cfg.Assets.LargeText,
			SmallImage: smallImage,
			SmallText:  smallText,
		},
		Buttons: buttons,
		TrackID: snap.TrackID,
	})
}
