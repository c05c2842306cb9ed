package bundle

import (
	"os"
	"path/filepath"
	"strings"

	"appforge/internal/fileutil"
	"appforge/internal/logging"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/net/html"
)

// copySharedAssets copies shared-library files referenced by the bundle
// markup from the shared asset directory into the bundle. Copies are
// idempotent: files already present in the bundle are left alone.
func (m *Materializer) copySharedAssets(dir, indexHTML string) error {
	if m.sharedAssets == "" || len(m.patterns) == 0 {
		return nil
	}
	refs := assetRefs(indexHTML)
	if len(refs) == 0 {
		return nil
	}

	sharedFS := os.DirFS(m.sharedAssets)
	copied := 0
	for _, pattern := range m.patterns {
		matches, err := doublestar.Glob(sharedFS, pattern)
		if err != nil {
			logging.Warn("bad asset pattern", "pattern", pattern, "error", err)
			continue
		}
		for _, match := range matches {
			if !referencesAsset(refs, match) {
				continue
			}
			dst := filepath.Join(dir, filepath.FromSlash(match))
			if _, err := os.Stat(dst); err == nil {
				continue
			}
			src := filepath.Join(m.sharedAssets, filepath.FromSlash(match))
			srcInfo, err := os.Stat(src)
			if err != nil || srcInfo.IsDir() {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return err
			}
			if err := fileutil.CopyFile(src, dst); err != nil {
				return err
			}
			copied++
		}
	}
	if copied > 0 {
		logging.Debug("shared assets copied", "count", copied)
	}
	return nil
}

// assetRefs collects src/href attribute values from markup. Parse errors
// surface as however much the tolerant parser recovered.
func assetRefs(markup string) []string {
	if markup == "" {
		return nil
	}
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	var refs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				if attr.Key == "src" || attr.Key == "href" {
					refs = append(refs, strings.TrimPrefix(attr.Val, "./"))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return refs
}

// referencesAsset reports whether any markup reference points at the
// asset path, either exactly or by naming its top-level directory (a
// stylesheet reference pulls in the library's sibling font files).
func referencesAsset(refs []string, asset string) bool {
	topDir := asset
	if i := strings.IndexByte(asset, '/'); i > 0 {
		topDir = asset[:i]
	}
	for _, ref := range refs {
		if isExternalRef(ref) {
			continue
		}
		if ref == asset || strings.HasPrefix(ref, topDir+"/") {
			return true
		}
	}
	return false
}

func isExternalRef(ref string) bool {
	return strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "//") ||
		strings.HasPrefix(ref, "data:")
}
