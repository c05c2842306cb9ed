// Package bundle materializes extracted file sets into self-contained
// static web-app bundles. A bundle directory always carries the full
// required file set; missing pieces are filled with functional defaults
// and a present-but-incomplete manifest is repaired field by field.
package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"appforge/internal/fileutil"
	"appforge/internal/logging"

	"github.com/google/uuid"
)

// RequiredFiles is the file set every bundle must contain.
var RequiredFiles = []string{"index.html", "manifest.json", "sw.js", "app.js", "styles.css"}

// MetadataFile holds the bundle's name/id record.
const MetadataFile = "app_info.json"

// Info is the small metadata record persisted with each bundle.
type Info struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Materializer writes bundles under a root directory.
type Materializer struct {
	root         string
	sharedAssets string
	patterns     []string
	chunkSize    int
	chunkPause   time.Duration
}

// Config holds materializer settings.
type Config struct {
	Root            string
	SharedAssetsDir string
	AssetPatterns   []string
	ChunkSize       int
	ChunkPause      time.Duration
}

// New creates a materializer. The bundle root is created if absent.
func New(cfg Config) (*Materializer, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("bundle root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bundle root: %w", err)
	}
	return &Materializer{
		root:         cfg.Root,
		sharedAssets: cfg.SharedAssetsDir,
		patterns:     cfg.AssetPatterns,
		chunkSize:    cfg.ChunkSize,
		chunkPause:   cfg.ChunkPause,
	}, nil
}

// Root returns the bundle root directory.
func (m *Materializer) Root() string {
	return m.root
}

// Dir returns the directory of a bundle id.
func (m *Materializer) Dir(id string) string {
	return filepath.Join(m.root, id)
}

// Create materializes a brand-new bundle from an extracted file mapping
// and returns its metadata. Files are staged into a temp directory and
// renamed into place, so readers never observe a partial bundle.
func (m *Materializer) Create(ctx context.Context, name string, files map[string]string) (Info, error) {
	id := uuid.NewString()
	info := Info{Name: name, ID: id}

	complete := m.completeFileSet(files, nil, name)

	staging, err := os.MkdirTemp(m.root, ".staging-*")
	if err != nil {
		return Info{}, fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := m.writeFiles(ctx, staging, complete); err != nil {
		return Info{}, err
	}

	meta, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return Info{}, err
	}
	if err := os.WriteFile(filepath.Join(staging, MetadataFile), meta, 0644); err != nil {
		return Info{}, fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := m.copySharedAssets(staging, complete["index.html"]); err != nil {
		logging.Warn("shared asset copy failed", "bundle", id, "error", err)
	}

	if err := os.Rename(staging, m.Dir(id)); err != nil {
		return Info{}, fmt.Errorf("failed to publish bundle: %w", err)
	}
	logging.Info("bundle created", "bundle", id, "files", len(complete))
	return info, nil
}

// Rework updates an existing bundle in place. Files the extraction did
// not produce are kept; the service worker's cache version is rewritten
// even when its content is untouched, so cached clients revalidate.
// Writes are transactional: a failure rolls the bundle back.
func (m *Materializer) Rework(ctx context.Context, id string, files map[string]string) (*ChangeReport, error) {
	dir := m.Dir(id)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("bundle %s not found: %w", id, err)
	}

	existing, err := readBundleFiles(dir)
	if err != nil {
		return nil, err
	}

	complete := m.completeFileSet(files, existing, "")

	tx, err := fileutil.NewWriteTransaction()
	if err != nil {
		return nil, err
	}
	report := &ChangeReport{BundleID: id}
	for _, name := range sortedKeys(complete) {
		content := complete[name]
		if prev, ok := existing[name]; ok && prev == content {
			continue
		}
		if err := tx.Write(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			return nil, err
		}
		report.add(name, existing[name], content)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("rework failed: %w", err)
	}

	if err := m.copySharedAssets(dir, complete["index.html"]); err != nil {
		logging.Warn("shared asset copy failed", "bundle", id, "error", err)
	}

	logging.Info("bundle reworked", "bundle", id, "changed", len(report.Changes))
	return report, nil
}

// Files returns the bundle's top-level text files keyed by name. The
// metadata record is excluded.
func (m *Materializer) Files(id string) (map[string]string, error) {
	return readBundleFiles(m.Dir(id))
}

// ReadInfo loads a bundle's metadata record.
func (m *Materializer) ReadInfo(id string) (Info, error) {
	data, err := os.ReadFile(filepath.Join(m.Dir(id), MetadataFile))
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("malformed %s for bundle %s: %w", MetadataFile, id, err)
	}
	return info, nil
}

// List returns metadata for all bundles under the root.
func (m *Materializer) List() ([]Info, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, err
	}
	var infos []Info
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		info, err := m.ReadInfo(entry.Name())
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// completeFileSet merges the extracted files over any existing content and
// fills in defaults so the required file set is always present. The
// service worker always leaves with a fresh cache version.
func (m *Materializer) completeFileSet(files, existing map[string]string, name string) map[string]string {
	out := make(map[string]string, len(files)+len(RequiredFiles))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range files {
		out[k] = v
	}

	if out["index.html"] == "" {
		out["index.html"] = defaultIndexHTML(name)
	}
	if out["app.js"] == "" {
		out["app.js"] = defaultAppJS
	}
	if out["styles.css"] == "" {
		out["styles.css"] = defaultStylesCSS
	}
	out["manifest.json"] = repairManifest(out["manifest.json"], name)

	version := newCacheVersion()
	if out["sw.js"] == "" {
		out["sw.js"] = defaultServiceWorker(version)
	} else {
		out["sw.js"] = bumpCacheVersion(out["sw.js"], version)
	}
	return out
}

// writeFiles writes the file set chunked, bounding I/O pressure.
func (m *Materializer) writeFiles(ctx context.Context, dir string, files map[string]string) error {
	for _, name := range sortedKeys(files) {
		path := filepath.Join(dir, name)
		if err := fileutil.WriteChunked(ctx, path, []byte(files[name]), 0644, m.chunkSize, m.chunkPause); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

// readBundleFiles reads the top-level text files of a bundle.
func readBundleFiles(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == MetadataFile {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		files[entry.Name()] = string(data)
	}
	return files, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
