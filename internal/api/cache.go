package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	appLog "trennkal/internal/log"
)

// cacheMeta holds HTTP cache metadata for a single URL.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// responseCache is a disk-backed cache of GET responses keyed by a hash
// of the request URL. It backs conditional requests (ETag /
// Last-Modified) and offline fallback.
type responseCache struct {
	dir string
}

func (rc *responseCache) pathFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(rc.dir, hex.EncodeToString(sum[:8]))
}

// load returns the stored metadata and body for url. Missing or
// unreadable entries come back zero-valued; the cache is best effort.
func (rc *responseCache) load(url string) (cacheMeta, []byte) {
	dir := rc.pathFor(url)

	var meta cacheMeta
	if data, err := os.ReadFile(filepath.Join(dir, "meta.json")); err == nil {
		if err := json.Unmarshal(data, &meta); err != nil {
			meta = cacheMeta{}
		}
	}
	body, err := os.ReadFile(filepath.Join(dir, "body.json"))
	if err != nil {
		body = nil
	}
	return meta, body
}

// save stores metadata and body for url. Failures are logged, never
// propagated: a broken cache must not break the request that filled it.
func (rc *responseCache) save(url string, meta cacheMeta, body []byte) {
	dir := rc.pathFor(url)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		appLog.Error("api cache mkdir failed", err, "dir", dir)
		return
	}

	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body.json"), body, 0o600); err != nil {
		appLog.Error("api cache body write failed", err, "dir", dir)
		return
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		appLog.Error("api cache meta marshal failed", err, "dir", dir)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600); err != nil {
		appLog.Error("api cache meta write failed", err, "dir", dir)
	}
}
