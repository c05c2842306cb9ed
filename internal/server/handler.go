package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"appforge/internal/logging"
	"appforge/internal/security"
)

// mimeTypes is the fixed extension table for bundle content. Anything
// else is served as an opaque byte stream.
var mimeTypes = map[string]string{
	".html":        "text/html; charset=utf-8",
	".css":         "text/css; charset=utf-8",
	".js":          "application/javascript; charset=utf-8",
	".json":        "application/json; charset=utf-8",
	".svg":         "image/svg+xml",
	".png":         "image/png",
	".jpg":         "image/jpeg",
	".jpeg":        "image/jpeg",
	".gif":         "image/gif",
	".ico":         "image/x-icon",
	".webp":        "image/webp",
	".woff":        "font/woff",
	".woff2":       "font/woff2",
	".ttf":         "font/ttf",
	".txt":         "text/plain; charset=utf-8",
	".webmanifest": "application/manifest+json",
}

// BundleHandler serves a single bundle directory. Every request path is
// resolved through a path validator, so traversal attempts collapse to
// a plain 404.
type BundleHandler struct {
	validator *security.PathValidator
}

// NewBundleHandler builds a handler rooted at a bundle directory.
func NewBundleHandler(dir string) (*BundleHandler, error) {
	validator, err := security.NewPathValidator(dir)
	if err != nil {
		return nil, err
	}
	return &BundleHandler{validator: validator}, nil
}

func (h *BundleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// A panic below must not take the server down with it.
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("panic serving bundle request", "path", r.URL.Path, "panic", rec)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}()

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, "/")
	if rel == "" {
		rel = "index.html"
	}

	path, err := h.validator.Resolve(rel)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logging.Error("failed to read bundle file", "path", rel, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(path))
	w.Header().Set("Cache-Control", "no-cache")
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.Debug("client went away mid-response", "path", rel, "error", err)
	}
}

func contentTypeFor(path string) string {
	if ct, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}
