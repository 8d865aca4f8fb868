// Package fileprovider is a reference Provider implementation for local
// development and testing: it watches a directory for the most recently
// modified supported audio file and reports it as "now playing", extracting
// tag metadata and duration the same way the original library extractor did.
// It is not meant to model a real OS media session — see internal/provider
// for the interface real Providers implement.
package fileprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"presence-bridge/pkg/models"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

var supportedExtensions = map[string]bool{
	".mp3": true, ".flac": true, ".wav": true, ".m4a": true,
}

// trackInfo is the cached result of extracting one file's metadata, keyed by
// path+mtime so re-scans of an unchanged directory are cheap.
type trackInfo struct {
	title, artist, album string
	durationMs           int64
	modTime              time.Time
}

// Provider polls watchDir for the newest audio file and reports simulated
// playback progress through it, looping once the extracted duration elapses.
type Provider struct {
	watchDir string
	logger   *logrus.Logger

	mu        sync.Mutex
	cache     map[string]trackInfo
	current   string
	startedAt time.Time
}

// New creates a fileprovider watching watchDir. logger may be nil.
func New(watchDir string, logger *logrus.Logger) *Provider {
	if logger == nil {
		logger = logrus.New()
	}
	return &Provider{
		watchDir: watchDir,
		logger:   logger,
		cache:    make(map[string]trackInfo),
	}
}

func (p *Provider) Name() string { return "fileprovider" }

// IsAvailable reports whether watchDir exists, letting the Registry skip a
// misconfigured fileprovider cheaply.
func (p *Provider) IsAvailable() bool {
	info, err := os.Stat(p.watchDir)
	return err == nil && info.IsDir()
}

// Poll implements provider.Provider.
func (p *Provider) Poll(ctx context.Context) (models.Snapshot, error) {
	path, modTime, err := p.newestAudioFile()
	if err != nil {
		return models.Snapshot{}, err
	}
	if path == "" {
		return models.Snapshot{State: models.StateStopped, CapturedAt: time.Now()}, nil
	}

	info, err := p.extract(path, modTime)
	if err != nil {
		return models.Snapshot{}, err
	}

	now := time.Now()
	p.mu.Lock()
	if p.current != path {
		p.current = path
		p.startedAt = now
	}
	elapsed := now.Sub(p.startedAt).Milliseconds()
	p.mu.Unlock()

	position := elapsed
	if info.durationMs > 0 {
		position = position % info.durationMs
	}

	return models.Snapshot{
		State:      models.StatePlaying,
		Title:      info.title,
		Artist:     info.artist,
		Album:      info.album,
		DurationMs: nonZeroPtr(info.durationMs),
		PositionMs: &position,
		TrackID:    fmt.Sprintf("%s@%d", path, modTime.Unix()),
		CapturedAt: now,
	}, nil
}

func nonZeroPtr(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func (p *Provider) newestAudioFile() (string, time.Time, error) {
	entries, err := os.ReadDir(p.watchDir)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("fileprovider: read %s: %w", p.watchDir, err)
	}

	var newestPath string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().After(newestMod) {
			newestMod = fi.ModTime()
			newestPath = filepath.Join(p.watchDir, entry.Name())
		}
	}
	return newestPath, newestMod, nil
}

func (p *Provider) extract(path string, modTime time.Time) (trackInfo, error) {
	p.mu.Lock()
	if cached, ok := p.cache[path]; ok && cached.modTime.Equal(modTime) {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return trackInfo{}, fmt.Errorf("fileprovider: open %s: %w", path, err)
	}
	defer file.Close()

	durationMs, err := p.duration(path)
	if err != nil {
		p.logger.WithFields(logrus.Fields{"path": path, "error": err.Error()}).
			Debug("fileprovider: duration unavailable, defaulting to 0")
		durationMs = 0
	}

	meta, err := tag.ReadFrom(file)
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	artist, album := "", ""
	if err == nil {
		if meta.Title() != "" {
			title = meta.Title()
		}
		artist = meta.Artist()
		album = meta.Album()
	} else {
		p.logger.WithFields(logrus.Fields{"path": path, "error": err.Error()}).
			Debug("fileprovider: no tag metadata, using filename")
	}

	info := trackInfo{title: title, artist: artist, album: album, durationMs: durationMs, modTime: modTime}
	p.mu.Lock()
	p.cache[path] = info
	p.mu.Unlock()
	return info, nil
}

func (p *Provider) duration(path string) (int64, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return durationMP3(path)
	case ".flac":
		return durationFLAC(path)
	case ".wav":
		return durationWAV(path)
	default:
		return 0, fmt.Errorf("unsupported format for duration: %s", path)
	}
}

func durationMP3(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return 0, err
			}
			break
		}
		total += fr.Duration()
		frames++
	}
	return total.Milliseconds(), nil
}

func durationFLAC(path string) (int64, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	si := stream.Info
	if si.NSamples == 0 || si.SampleRate == 0 {
		return 0, fmt.Errorf("flac stream missing sample info")
	}
	return int64(float64(si.NSamples) / float64(si.SampleRate) * 1000), nil
}

func durationWAV(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() || dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	const headerSize = int64(44)
	pcmBytes := st.Size() - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerFrame <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	frames := pcmBytes / bytesPerFrame
	return int64(float64(frames) / float64(dec.SampleRate) * 1000), nil
}
