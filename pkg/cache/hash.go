package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// hashKey returns the first 16 hex characters of the SHA-256 hash of key.
func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:8]) // 8 bytes = 16 hex chars
}

// fileName maps a key to a filesystem-safe base name. Plain service names
// ("weather", "prayer-times") are used as-is so the files stay readable;
// anything else gets a sanitised prefix plus a hash suffix.
func fileName(key string) string {
	if isPlainKey(key) {
		return key
	}

	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if b.Len() >= 32 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + "-" + hashKey(key)
}

func isPlainKey(key string) bool {
	if key == "" || len(key) > 64 {
		return false
	}
	for i, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case (r == '-' || r == '_' || r == '.') && i > 0:
		default:
			return false
		}
	}
	return !strings.Contains(key, "..")
}
