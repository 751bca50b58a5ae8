package barline

import (
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/cache"
)

// readSnapshot decodes a service snapshot. Missing, undecodable and
// too-old snapshots all read as absent: a bar shows nothing rather than
// something wrong. The store is normally read-only, so a corrupt file is
// left for the daemon that owns it.
func readSnapshot[T any](r *Renderer, key string, now time.Time) (T, bool) {
	var zero T
	e, ok := cache.GetTyped[T](r.cfg.Store, key)
	if !ok {
		return zero, false
	}
	if limit := r.maxAge(key); limit > 0 && now.Sub(e.FetchedAt) > limit {
		return zero, false
	}
	return e.Data, true
}
