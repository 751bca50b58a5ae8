package nowplaying

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/shell"
)

// Config controls the now-playing source.
type Config struct {
	Runner shell.Runner

	// Player restricts playerctl to one player name, e.g. "spotify".
	Player string

	// Enrich runs yt-dlp for YouTube URLs.
	Enrich bool

	// Art, when set, downloads covers into the cache directory.
	Art *ArtCache

	Logger *slog.Logger
}

// Source reads the active player through playerctl.
type Source struct {
	cfg    Config
	yt     *enricher
	logger *slog.Logger
}

// NewSource creates a Source. A nil Runner uses shell.ExecRunner.
func NewSource(cfg Config) *Source {
	if cfg.Runner == nil {
		cfg.Runner = shell.ExecRunner{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		cfg:    cfg,
		yt:     newEnricher(cfg.Runner),
		logger: logger.With("source", "nowplaying"),
	}
}

func (s *Source) args() []string {
	var args []string
	if s.cfg.Player != "" {
		args = append(args, "--player="+s.cfg.Player)
	}
	return append(args, "metadata", "--format", PlayerctlFormat)
}

// Fetch returns the current track. No running player yields Idle, not an
// error. Enrichment and art failures are logged and leave those fields
// empty.
func (s *Source) Fetch(ctx context.Context) (Track, error) {
	out, err := s.cfg.Runner.Run(ctx, "playerctl", s.args()...)
	if err != nil {
		if noPlayer(err) {
			return Idle(), nil
		}
		return Track{}, err
	}
	t, err := ParsePlayerctl(string(out))
	if err != nil {
		return Track{}, err
	}

	if s.cfg.Enrich && IsYouTube(t.URL) {
		v, err := s.yt.lookup(ctx, t.URL)
		if err != nil {
			s.logger.Debug("yt-dlp enrichment failed", "url", t.URL, "error", err)
		} else {
			t = v.apply(t)
		}
	}

	if s.cfg.Art != nil && t.ArtURL != "" {
		path, err := s.cfg.Art.Get(ctx, t.ArtURL)
		if err != nil {
			s.logger.Debug("album art unavailable", "url", t.ArtURL, "error", err)
		} else {
			t.ArtPath = path
		}
	}
	return t, nil
}

func noPlayer(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return strings.Contains(err.Error(), "No players found") ||
		strings.Contains(err.Error(), "No player could handle this command")
}
