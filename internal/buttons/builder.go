// Package buttons resolves the single optional Rich Presence button for a
// Snapshot: a link to play the current track somewhere. It is consulted
// only when enable_buttons is set (spec §4.2's render step, §6's open
// question on button URL resolution).
package buttons

import (
	"context"
	"net/url"
	"strings"
	"time"

	"presence-bridge/internal/cache"
	"presence-bridge/pkg/models"

	"github.com/sirupsen/logrus"
)

// urlBuilder resolves a button URL for a snapshot. Builders may make network
// calls; Registry bounds and caches them so a slow/broken builder never
// blocks the poll loop.
type urlBuilder interface {
	label() string
	build(ctx context.Context, snap models.Snapshot) (string, bool)
}

// Registry picks a urlBuilder by the Snapshot's Provider field, falling back
// to a provider-agnostic Spotify search link when no specific builder
// matches or the specific one fails to resolve anything.
type Registry struct {
	byProvider map[string]urlBuilder
	fallback   urlBuilder
	cache      *cache.URLCache
	logger     *logrus.Logger
	timeout    time.Duration
}

// NewRegistry builds the default button registry: an Apple Music iTunes
// Search builder keyed to the "fileprovider"/"apple_music" provider names,
// and a Spotify search-link fallback for everything else.
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		byProvider: map[string]urlBuilder{
			"apple_music":  appleMusicBuilder{},
			"fileprovider": appleMusicBuilder{},
		},
		fallback: spotifySearchBuilder{},
		cache:    cache.NewURLCache(),
		logger:   logger,
		timeout:  3 * time.Second,
	}
}

// Build implements engine.ButtonBuilder.
func (r *Registry) Build(snap models.Snapshot) (models.Button, bool) {
	if snap.TrackID == "" {
		return models.Button{}, false
	}

	if cached, ok := r.cache.GetURL(snap.TrackID); ok {
		if cached == "" {
			return models.Button{}, false
		}
		return models.Button{Label: r.labelFor(snap), URL: cached}, true
	}

	b := r.byProvider[snap.Provider]
	if b == nil {
		b = r.fallback
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	link, ok := b.build(ctx, snap)
	if !ok && b != r.fallback {
		link, ok = r.fallback.build(ctx, snap)
		b = r.fallback
	}

	r.cache.SetURL(snap.TrackID, link) // cache the miss too, so repeated polls of a dead lookup don't retry every time
	if !ok {
		return models.Button{}, false
	}
	return models.Button{Label: b.label(), URL: link}, true
}

func (r *Registry) labelFor(snap models.Snapshot) string {
	if b, ok := r.byProvider[snap.Provider]; ok {
		return b.label()
	}
	return r.fallback.label()
}

// spotifySearchBuilder builds a deterministic Spotify search URL with no
// network call, used as the universal fallback.
type spotifySearchBuilder struct{}

func (spotifySearchBuilder) label() string { return "Search on Spotify" }

func (spotifySearchBuilder) build(_ context.Context, snap models.Snapshot) (string, bool) {
	query := strings.TrimSpace(strings.Join([]string{snap.Artist, snap.Title}, " "))
	if query == "" {
		return "", false
	}
	return "https://open.spotify.com/search/" + url.PathEscape(query), true
}
