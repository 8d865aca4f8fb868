package engine

import (
	"time"

	"presence-bridge/pkg/models"
)

// positionDriftTolerance is the ±1500ms window within which a position
// change is considered consistent with natural playback progression (§4.2
// step 2).
const positionDriftTolerance = 1500 * time.Millisecond

// classify implements §4.2 step 2: classify change vs. last_snapshot.
func classify(last *models.Snapshot, incoming models.Snapshot) models.ChangeKind {
	if last == nil {
		return models.ChangeNone
	}

	lastActive := last.IsActive()
	newActive := incoming.IsActive()

	if !lastActive && !newActive {
		return models.ChangeNoChange
	}
	if !lastActive && newActive {
		return models.ChangeTrack
	}
	if lastActive && !newActive {
		return models.ChangeStateTransition
	}

	// both active
	if last.TrackID != incoming.TrackID {
		return models.ChangeTrack
	}
	if last.State != incoming.State {
		return models.ChangeStateTransition
	}

	if metadataDiffers(last, &incoming) {
		return models.ChangeMetadataRefresh
	}

	positionChanged := positionDiffers(last.PositionMs, incoming.PositionMs) || !last.CapturedAt.Equal(incoming.CapturedAt)
	if !positionChanged {
		return models.ChangeNoChange
	}

	if incoming.State == models.StatePlaying {
		expected := extrapolatePosition(*last, incoming.CapturedAt)
		if withinTolerance(expected, incoming.PositionMs) {
			return models.ChangePositionDrift
		}
		return models.ChangeStateTransition // seek
	}

	// Paused: position should not move on its own; any real movement is a seek.
	if positionDiffers(last.PositionMs, incoming.PositionMs) {
		return models.ChangeStateTransition
	}
	return models.ChangePositionDrift
}

func metadataDiffers(last, incoming *models.Snapshot) bool {
	if last.Title != incoming.Title || last.Artist != incoming.Artist || last.Album != incoming.Album {
		return true
	}
	return durationDiffers(last.DurationMs, incoming.DurationMs)
}

func durationDiffers(a, b *int64) bool {
	if (a == nil) != (b == nil) {
		return true
	}
	if a == nil {
		return false
	}
	return *a != *b
}

func positionDiffers(a, b *int64) bool {
	return durationDiffers(a, b)
}

// extrapolatePosition projects where playback position should be at `at`,
// assuming uninterrupted playback since `last` was captured.
func extrapolatePosition(last models.Snapshot, at time.Time) *int64 {
	if last.PositionMs == nil {
		return nil
	}
	elapsed := at.Sub(last.CapturedAt).Milliseconds()
	expected := *last.PositionMs + elapsed
	if expected < 0 {
		expected = 0
	}
	return &expected
}

func withinTolerance(expected, actual *int64) bool {
	if expected == nil || actual == nil {
		return expected == actual
	}
	diff := *expected - *actual
	if diff < 0 {
		diff = -diff
	}
	return time.Duration(diff)*time.Millisecond <= positionDriftTolerance
}
