package nowplaying

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the webp decoder used by imaging.Decode
)

// DefaultArtSize is the thumbnail edge length in pixels.
const DefaultArtSize = 128

// maxArtBytes bounds a downloaded cover.
const maxArtBytes = 8 << 20

// ArtCache downloads album art, crops it to a square thumbnail and keeps it
// as a PNG under Dir. Thumbnails are keyed by source URL so each cover is
// fetched once.
type ArtCache struct {
	dir    string
	size   int
	client *http.Client
}

// NewArtCache creates the cache directory. size <= 0 uses DefaultArtSize.
func NewArtCache(dir string, size int, client *http.Client) (*ArtCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("art cache: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("art cache: %w", err)
	}
	if size <= 0 {
		size = DefaultArtSize
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ArtCache{dir: dir, size: size, client: client}, nil
}

// Path returns where the thumbnail for artURL is stored.
func (c *ArtCache) Path(artURL string) string {
	sum := sha256.Sum256([]byte(artURL))
	return filepath.Join(c.dir, "art-"+hex.EncodeToString(sum[:8])+".png")
}

// Get returns the thumbnail path for artURL, downloading and resizing it on
// first use. file:// and http(s) URLs are supported.
func (c *ArtCache) Get(ctx context.Context, artURL string) (string, error) {
	path := c.Path(artURL)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	raw, err := c.load(ctx, artURL)
	if err != nil {
		return "", err
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("art: decode %s: %w", artURL, err)
	}
	thumb := imaging.Fill(img, c.size, c.size, imaging.Center, imaging.Lanczos)

	tmp, err := os.CreateTemp(c.dir, ".tmp-art-*")
	if err != nil {
		return "", fmt.Errorf("art: %w", err)
	}
	tmpName := tmp.Name()
	if err := imaging.Encode(tmp, thumb, imaging.PNG); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("art: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("art: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("art: %w", err)
	}
	return path, nil
}

func (c *ArtCache) load(ctx context.Context, artURL string) ([]byte, error) {
	u, err := url.Parse(artURL)
	if err != nil {
		return nil, fmt.Errorf("art: bad url %q: %w", artURL, err)
	}

	switch u.Scheme {
	case "file":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, fmt.Errorf("art: %w", err)
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxArtBytes))
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, artURL, nil)
		if err != nil {
			return nil, fmt.Errorf("art: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("art: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("art: %s: unexpected status %s", artURL, resp.Status)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxArtBytes))
	default:
		return nil, fmt.Errorf("art: unsupported scheme %q", u.Scheme)
	}
}

// Prune removes thumbnails not accessed within maxAge.
func (c *ArtCache) Prune(maxAge time.Duration) (int, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "art-*.png"))
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(m) == nil {
			removed++
		}
	}
	return removed, nil
}
