// Package nowplaying reads MPRIS player metadata through playerctl, enriches
// YouTube tracks with yt-dlp, and caches square album-art thumbnails.
package nowplaying

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/shell"
)

// Playback states reported by playerctl.
const (
	Playing = "Playing"
	Paused  = "Paused"
	Stopped = "Stopped"
)

// Track is the current player's metadata.
type Track struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	URL         string `json:"url,omitempty"`
	Status      string `json:"status"`
	LengthSec   int    `json:"length_sec"`
	PositionSec int    `json:"position_sec"`
	ArtURL      string `json:"art_url,omitempty"`
	ArtPath     string `json:"art_path,omitempty"`
	Player      string `json:"player,omitempty"`
}

// Idle is the value shown when no player is running.
func Idle() Track {
	return Track{Status: Stopped}
}

// Label renders "Artist - Title", or just the title when the artist is
// unknown.
func (t Track) Label() string {
	switch {
	case t.Title == "":
		return ""
	case t.Artist == "":
		return t.Title
	default:
		return t.Artist + " - " + t.Title
	}
}

// Progress renders "m:ss/m:ss". An unknown length renders only the position.
func (t Track) Progress() string {
	pos := formatSeconds(t.PositionSec)
	if t.LengthSec <= 0 {
		return pos
	}
	return pos + "/" + formatSeconds(t.LengthSec)
}

func formatSeconds(s int) string {
	d := time.Duration(s) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// playerctlFields is the metadata template; fields are tab separated.
var playerctlFields = []string{
	"{{playerName}}",
	"{{status}}",
	"{{title}}",
	"{{artist}}",
	"{{album}}",
	"{{xesam:url}}",
	"{{mpris:length}}",
	"{{position}}",
	"{{mpris:artUrl}}",
}

// PlayerctlFormat is the --format argument passed to playerctl.
var PlayerctlFormat = strings.Join(playerctlFields, "\t")

// ParsePlayerctl parses one line of PlayerctlFormat output.
func ParsePlayerctl(out string) (Track, error) {
	line := strings.TrimRight(out, "\r\n")
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	parts := strings.Split(line, "\t")
	if len(parts) != len(playerctlFields) {
		return Track{}, shell.Unparseable("playerctl", "got %d fields, want %d", len(parts), len(playerctlFields))
	}

	t := Track{
		Player: parts[0],
		Status: parts[1],
		Title:  strings.TrimSpace(parts[2]),
		Artist: strings.TrimSpace(parts[3]),
		Album:  strings.TrimSpace(parts[4]),
		URL:    parts[5],
		ArtURL: parts[8],
	}
	switch t.Status {
	case Playing, Paused, Stopped:
	default:
		return Track{}, shell.Unparseable("playerctl", "unknown status %q", t.Status)
	}

	var err error
	if t.LengthSec, err = microsToSeconds(parts[6]); err != nil {
		return Track{}, shell.Unparseable("playerctl", "length %q", parts[6])
	}
	if t.PositionSec, err = microsToSeconds(parts[7]); err != nil {
		return Track{}, shell.Unparseable("playerctl", "position %q", parts[7])
	}
	return t, nil
}

// microsToSeconds converts an MPRIS microsecond value. Empty means unknown.
func microsToSeconds(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid microseconds %q", s)
	}
	return int(v / 1_000_000), nil
}

// IsYouTube reports whether raw points at a YouTube video.
func IsYouTube(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "music.youtube.com", "m.youtube.com":
		return u.Query().Get("v") != "" || strings.HasPrefix(u.Path, "/shorts/")
	case "youtu.be":
		return len(strings.Trim(u.Path, "/")) > 0
	}
	return false
}
