package fileprovider

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"presence-bridge/pkg/models"
)

// writeTestWAV writes a canonical 16-bit PCM mono WAV file with exactly
// numFrames samples at sampleRate, giving a precisely known duration.
func writeTestWAV(t *testing.T, path string, sampleRate, numFrames int) {
	t.Helper()

	const bitsPerSample = 16
	const numChannels = 1
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := numFrames * blockAlign

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing test wav: %v", err)
	}
}

func TestDurationWAVComputesExactDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.wav")
	writeTestWAV(t, path, 44100, 44100) // exactly one second of audio

	ms, err := durationWAV(path)
	if err != nil {
		t.Fatalf("durationWAV: %v", err)
	}
	if ms != 1000 {
		t.Errorf("duration = %dms, want 1000ms", ms)
	}
}

func TestDurationRejectsUnsupportedExtension(t *testing.T) {
	p := New(t.TempDir(), nil)
	_, err := p.duration("song.ogg")
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestNewestAudioFilePicksMostRecentlyModified(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "older.wav")
	newer := filepath.Join(dir, "newer.wav")

	writeTestWAV(t, older, 44100, 100)
	writeTestWAV(t, newer, 44100, 100)

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	p := New(dir, nil)
	path, _, err := p.newestAudioFile()
	if err != nil {
		t.Fatalf("newestAudioFile: %v", err)
	}
	if path != newer {
		t.Errorf("newestAudioFile = %q, want %q", path, newer)
	}
}

func TestNewestAudioFileIgnoresUnsupportedExtensions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := New(dir, nil)
	path, _, err := p.newestAudioFile()
	if err != nil {
		t.Fatalf("newestAudioFile: %v", err)
	}
	if path != "" {
		t.Errorf("newestAudioFile = %q, want empty when no supported files are present", path)
	}
}

func TestPollReportsStoppedWhenDirectoryEmpty(t *testing.T) {
	p := New(t.TempDir(), nil)
	snap, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if snap.State != models.StateStopped {
		t.Errorf("State = %v, want StateStopped", snap.State)
	}
}

func TestPollFallsBackToFilenameWithoutTags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Some Track.wav")
	writeTestWAV(t, path, 44100, 44100)

	p := New(dir, nil)
	snap, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if snap.State != models.StatePlaying {
		t.Errorf("State = %v, want StatePlaying", snap.State)
	}
	if snap.Title != "Some Track" {
		t.Errorf("Title = %q, want %q", snap.Title, "Some Track")
	}
	if snap.TrackID == "" {
		t.Error("expected a non-empty TrackID")
	}
}

func TestPollSimulatedPositionLoopsWithinDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.wav")
	writeTestWAV(t, path, 44100, 4410) // 100ms long

	p := New(dir, nil)
	snap, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if snap.PositionMs == nil {
		t.Fatal("expected PositionMs to be set")
	}
	if snap.DurationMs == nil || *snap.DurationMs != 100 {
		t.Fatalf("DurationMs = %v, want 100", snap.DurationMs)
	}
	if *snap.PositionMs < 0 || *snap.PositionMs >= *snap.DurationMs {
		t.Errorf("PositionMs = %d, want within [0, %d)", *snap.PositionMs, *snap.DurationMs)
	}
}

func TestIsAvailableReflectsDirectoryExistence(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, nil)
	if !p.IsAvailable() {
		t.Error("expected IsAvailable() true for an existing directory")
	}

	missing := New(filepath.Join(dir, "does-not-exist"), nil)
	if missing.IsAvailable() {
		t.Error("expected IsAvailable() false for a missing directory")
	}
}
