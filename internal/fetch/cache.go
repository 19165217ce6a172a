// Package fetch - cache.go provides the on-disk content cache keyed by URL
// hash, one file per URL per content type.
package fetch

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
)

// Cache file extensions double as the content-type dimension of the cache
// key: the same URL fetched as HTML and as PDF occupies two files.
const (
	extHTML = "html"
	extPDF  = "pdf"
)

// diskCache stores fetched payloads under dir as <md5(url)>.<ext>.
type diskCache struct {
	dir string
}

func newDiskCache(dir string) (*diskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &diskCache{dir: dir}, nil
}

// CacheKey returns the hex MD5 digest used to name a URL's cache files.
func CacheKey(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

func (c *diskCache) path(rawURL, ext string) string {
	return filepath.Join(c.dir, CacheKey(rawURL)+"."+ext)
}

func (c *diskCache) read(rawURL, ext string) ([]byte, bool) {
	data, err := os.ReadFile(c.path(rawURL, ext))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *diskCache) write(rawURL, ext string, data []byte) error {
	return os.WriteFile(c.path(rawURL, ext), data, 0o644)
}

// cacheRead checks the disk cache. A miss is silent; a hit is counted and
// logged in verbose mode.
func (f *Fetcher) cacheRead(rawURL, ext string) ([]byte, bool) {
	if f.cache == nil {
		return nil, false
	}
	data, ok := f.cache.read(rawURL, ext)
	if !ok {
		return nil, false
	}
	f.stats.CacheHits++
	f.vlogf("[CACHE] hit for %s (%d bytes)", rawURL, len(data))
	return data, true
}

// cacheWrite stores a payload best-effort. Failures are counted in
// Stats.CacheWriteFailures and logged; they never affect the fetch result.
func (f *Fetcher) cacheWrite(rawURL, ext string, data []byte) {
	if f.cache == nil || len(data) == 0 {
		return
	}
	if err := f.cache.write(rawURL, ext, data); err != nil {
		f.stats.CacheWriteFailures++
		f.vlogf("[CACHE] write failed for %s: %v", rawURL, err)
		return
	}
	f.stats.CacheWrites++
}
