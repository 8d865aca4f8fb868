package buttons

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"presence-bridge/pkg/models"
)

const iTunesSearchURL = "https://itunes.apple.com/search"

var iTunesHTTPClient = &http.Client{Timeout: 3 * time.Second}

type iTunesSearchResult struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		TrackViewURL string `json:"trackViewUrl"`
	} `json:"results"`
}

// appleMusicBuilder resolves a track's Apple Music page via the iTunes
// Search API (no authentication required).
type appleMusicBuilder struct{}

func (appleMusicBuilder) label() string { return "Listen on Apple Music" }

func (appleMusicBuilder) build(ctx context.Context, snap models.Snapshot) (string, bool) {
	query := strings.TrimSpace(strings.Join([]string{snap.Artist, snap.Title}, " "))
	if query == "" {
		return "", false
	}

	params := url.Values{}
	params.Set("term", query)
	params.Set("media", "music")
	params.Set("entity", "song")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?%s", iTunesSearchURL, params.Encode()), nil)
	if err != nil {
		return "", false
	}

	resp, err := iTunesHTTPClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var result iTunesSearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", false
	}
	if result.ResultCount == 0 || len(result.Results) == 0 {
		return "", false
	}

	link := result.Results[0].TrackViewURL
	if link == "" {
		return "", false
	}
	return link, true
}
