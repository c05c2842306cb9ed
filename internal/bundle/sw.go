package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"time"

	"appforge/internal/fileutil"
)

// cacheVersionPattern matches the cache version marker inside a service
// worker. Rewriting it on every rework forces clients to refetch.
var cacheVersionPattern = regexp.MustCompile(`const CACHE_VERSION = '[^']*';`)

var cacheVersionSeq atomic.Int64

// newCacheVersion returns a fresh, monotonically increasing version
// value. The sequence counter keeps versions distinct even when two
// reworks land within the same millisecond.
func newCacheVersion() string {
	return fmt.Sprintf("v%d-%d", time.Now().UnixMilli(), cacheVersionSeq.Add(1))
}

// bumpCacheVersion rewrites the version marker in a service worker. A
// worker without the marker gets one prepended so future reworks can
// still invalidate caches.
func bumpCacheVersion(content, version string) string {
	marker := fmt.Sprintf("const CACHE_VERSION = '%s';", version)
	if cacheVersionPattern.MatchString(content) {
		return cacheVersionPattern.ReplaceAllString(content, marker)
	}
	return marker + "\n" + content
}

// BumpServiceWorker rewrites the cache version of the service worker in
// a bundle directory on disk. A missing worker is recreated from the
// default template.
func BumpServiceWorker(dir string) error {
	path := filepath.Join(dir, "sw.js")
	version := newCacheVersion()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileutil.AtomicWriteString(path, defaultServiceWorker(version), 0644)
		}
		return err
	}
	return fileutil.AtomicWriteString(path, bumpCacheVersion(string(data), version), 0644)
}

// defaultServiceWorker returns a cache-first service worker that
// precaches the required file set under a versioned cache name.
func defaultServiceWorker(version string) string {
	return fmt.Sprintf(`const CACHE_VERSION = '%s';
const CACHE_NAME = 'appforge-' + CACHE_VERSION;
const PRECACHE = ['index.html', 'manifest.json', 'app.js', 'styles.css'];

self.addEventListener('install', (event) => {
  event.waitUntil(
    caches.open(CACHE_NAME).then((cache) => cache.addAll(PRECACHE))
  );
  self.skipWaiting();
});

self.addEventListener('activate', (event) => {
  event.waitUntil(
    caches.keys().then((names) =>
      Promise.all(names.filter((n) => n !== CACHE_NAME).map((n) => caches.delete(n)))
    )
  );
  self.clients.claim();
});

self.addEventListener('fetch', (event) => {
  event.respondWith(
    caches
      .match(event.request)
      .then((cached) => cached || fetch(event.request))
      .catch(() => caches.match('index.html'))
  );
});
`, version)
}
