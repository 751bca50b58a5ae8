package nowplaying

import (
	"context"
	"encoding/json"
	"sync"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/shell"
)

// videoInfo is the subset of yt-dlp --dump-single-json we read.
type videoInfo struct {
	Title     string  `json:"title"`
	Track     string  `json:"track"`
	Artist    string  `json:"artist"`
	Album     string  `json:"album"`
	Uploader  string  `json:"uploader"`
	Channel   string  `json:"channel"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
}

func parseVideoInfo(data []byte) (videoInfo, error) {
	var v videoInfo
	if err := json.Unmarshal(data, &v); err != nil {
		return videoInfo{}, shell.Unparseable("yt-dlp", "decode: %v", err)
	}
	if v.Title == "" && v.Track == "" {
		return videoInfo{}, shell.Unparseable("yt-dlp", "no title")
	}
	return v, nil
}

// apply fills fields the player left empty. Music metadata (track, artist)
// wins over the generic video title and uploader.
func (v videoInfo) apply(t Track) Track {
	title := v.Track
	if title == "" {
		title = v.Title
	}
	artist := v.Artist
	if artist == "" {
		artist = v.Channel
	}
	if artist == "" {
		artist = v.Uploader
	}

	if t.Title == "" || t.Title == t.URL {
		t.Title = title
	}
	if t.Artist == "" {
		t.Artist = artist
	}
	if t.Album == "" {
		t.Album = v.Album
	}
	if t.LengthSec == 0 && v.Duration > 0 {
		t.LengthSec = int(v.Duration)
	}
	if t.ArtURL == "" {
		t.ArtURL = v.Thumbnail
	}
	return t
}

// enricher runs yt-dlp once per URL and remembers the answer.
type enricher struct {
	runner shell.Runner

	mu   sync.Mutex
	seen map[string]videoInfo
}

func newEnricher(r shell.Runner) *enricher {
	return &enricher{runner: r, seen: make(map[string]videoInfo)}
}

func (e *enricher) lookup(ctx context.Context, url string) (videoInfo, error) {
	e.mu.Lock()
	v, ok := e.seen[url]
	e.mu.Unlock()
	if ok {
		return v, nil
	}

	out, err := e.runner.Run(ctx, "yt-dlp", "--dump-single-json", "--skip-download", "--no-warnings", url)
	if err != nil {
		return videoInfo{}, err
	}
	v, err = parseVideoInfo(out)
	if err != nil {
		return videoInfo{}, err
	}

	e.mu.Lock()
	// A player only ever has one current URL; keep the map small.
	if len(e.seen) >= 64 {
		clear(e.seen)
	}
	e.seen[url] = v
	e.mu.Unlock()
	return v, nil
}
