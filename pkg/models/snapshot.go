// Package models holds the data shapes shared between the Provider,
// Scheduler, Event Engine and Discord RPC client.
package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// PlaybackState is the playback state reported by a Provider.
type PlaybackState int

const (
	StateStopped PlaybackState = iota
	StatePlaying
	StatePaused
	StateError
)

func (s PlaybackState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "stopped"
	}
}

// Snapshot is the normalized output of a single Provider poll.
type Snapshot struct {
	State      PlaybackState `json:"state"`
	Title      string        `json:"title,omitempty"`
	Artist     string        `json:"artist,omitempty"`
	Album      string        `json:"album,omitempty"`
	DurationMs *int64        `json:"durationMs,omitempty"`
	PositionMs *int64        `json:"positionMs,omitempty"`
	TrackID    string        `json:"trackId,omitempty"`
	CapturedAt time.Time     `json:"capturedAt"`

	// Provider identifies which Provider produced this snapshot, used by
	// internal/buttons to pick a URL builder.
	Provider string `json:"provider,omitempty"`
}

// Sanitize trims whitespace, drops track fields inconsistent with State, and
// downgrades a Playing snapshot with no title to Stopped. It works on a copy:
// the receiver is left unchanged and the sanitized copy is returned.
func (s Snapshot) Sanitize() Snapshot {
	s.Title = strings.TrimSpace(s.Title)
	s.Artist = strings.TrimSpace(s.Artist)
	s.Album = strings.TrimSpace(s.Album)

	if s.State == StateStopped || s.State == StateError {
		s.Title = ""
		s.Artist = ""
		s.Album = ""
		s.DurationMs = nil
		s.PositionMs = nil
		s.TrackID = ""
		return s
	}

	if s.Title == "" {
		s.State = StateStopped
		s.Artist = ""
		s.Album = ""
		s.DurationMs = nil
		s.PositionMs = nil
		s.TrackID = ""
		return s
	}

	if s.TrackID == "" {
		s.TrackID = s.fingerprint()
	}

	return s
}

// fingerprint derives a stable track identity when the Provider didn't
// supply one, hashing normalized metadata. Position is never part of
// identity.
func (s Snapshot) fingerprint() string {
	var dur int64
	if s.DurationMs != nil {
		dur = *s.DurationMs
	}
	key := fmt.Sprintf("%s\x00%s\x00%s\x00%d",
		strings.ToLower(s.Title), strings.ToLower(s.Artist), strings.ToLower(s.Album), dur)
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// IsActive reports whether the snapshot represents an audible track.
func (s Snapshot) IsActive() bool {
	return s.State == StatePlaying || s.State == StatePaused
}

// ChangeKind classifies how a new Snapshot differs from the last accepted one.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeTrack
	ChangeStateTransition
	ChangeMetadataRefresh
	ChangePositionDrift
	ChangeNoChange
)

func (c ChangeKind) String() string {
	switch c {
	case ChangeTrack:
		return "track_change"
	case ChangeStateTransition:
		return "state_transition"
	case ChangeMetadataRefresh:
		return "metadata_refresh"
	case ChangePositionDrift:
		return "position_drift"
	case ChangeNoChange:
		return "no_change"
	default:
		return "none"
	}
}

// DecisionKind is the Event Engine's output variant.
type DecisionKind int

const (
	DecisionNoOp DecisionKind = iota
	DecisionClear
	DecisionSetActivity
)

// Timestamps mirrors the Discord RPC "timestamps" payload shape.
type Timestamps struct {
	StartUnix int64 `json:"start,omitempty"`
}

// Assets mirrors the Discord RPC "assets" payload shape.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Button is a clickable Rich Presence button.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// ActivityPayload is what the Discord RPC client sends for SET_ACTIVITY.
type ActivityPayload struct {
	Details        string      `json:"details,omitempty"`
	StateText      string      `json:"state,omitempty"`
	Timestamps     *Timestamps `json:"timestamps,omitempty"`
	Assets         Assets      `json:"assets,omitempty"`
	Buttons        []Button    `json:"buttons,omitempty"`
	TrackID        string      `json:"-"`
}

// Decision is the Event Engine's output to the RPC client.
type Decision struct {
	Kind     DecisionKind
	Activity ActivityPayload
}

func NoOp() Decision { return Decision{Kind: DecisionNoOp} }
func Clear() Decision { return Decision{Kind: DecisionClear} }
func SetActivity(a ActivityPayload) Decision {
	return Decision{Kind: DecisionSetActivity, Activity: a}
}
