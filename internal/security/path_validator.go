package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator validates file paths to prevent directory traversal.
// A validator is scoped to a single root directory; every path it accepts
// canonicalizes to a descendant of that root.
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator scoped to root. The root itself is
// canonicalized once so that later descendant checks compare like with like.
func NewPathValidator(root string) (*PathValidator, error) {
	if root == "" {
		return nil, fmt.Errorf("empty root")
	}
	abs, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to resolve root symlinks: %w", err)
		}
		resolved = abs
	}
	return &PathValidator{root: resolved}, nil
}

// Root returns the canonicalized root directory.
func (v *PathValidator) Root() string {
	return v.root
}

// Resolve joins rel onto the root and verifies the canonicalized result is
// still inside the root. Symlinks are resolved before the descendant check,
// so a link pointing outside the root is rejected the same as a ".." escape.
func (v *PathValidator) Resolve(rel string) (string, error) {
	if strings.Contains(rel, "\x00") {
		return "", fmt.Errorf("null byte in path")
	}

	joined := filepath.Join(v.root, filepath.Clean("/"+rel))

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if os.IsNotExist(err) {
			// Path may not exist; resolve the parent to catch symlinked dirs.
			parent, perr := filepath.EvalSymlinks(filepath.Dir(joined))
			if perr != nil && !os.IsNotExist(perr) {
				return "", fmt.Errorf("failed to resolve parent: %w", perr)
			}
			if parent != "" {
				resolved = filepath.Join(parent, filepath.Base(joined))
			} else {
				resolved = joined
			}
		} else {
			return "", fmt.Errorf("failed to resolve symlinks: %w", err)
		}
	}

	if !isPathWithin(resolved, v.root) {
		return "", fmt.Errorf("path %q is outside %q", rel, v.root)
	}
	return resolved, nil
}

// isPathWithin checks if target is base or a descendant of base.
func isPathWithin(target, base string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
