// Package extract turns untrusted free-text model output into a mapping of
// file name to file content. Model responses are not guaranteed to be pure
// JSON: they may wrap it in prose, fenced code blocks or nested fences.
// Extraction works through ordered tiers, each attempted only when the
// previous one fails to produce well-formed data, and always degrades to a
// usable result rather than failing.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"appforge/internal/logging"
)

// DefaultFile is the primary HTML entry point, used when the raw text has
// to be treated as a single file.
const DefaultFile = "index.html"

// wrapperKeys are top-level keys a file collection may be nested under.
var wrapperKeys = []string{"files", "code"}

// Result is an extracted file set.
type Result struct {
	// Files maps relative file name to content.
	Files map[string]string

	// Fallback reports that no structured file collection was found and
	// the whole raw text became the content of DefaultFile.
	Fallback bool
}

var (
	taggedFencePattern  = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)```")
	genericFencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*\\n?(.*?)```")
)

// Files extracts a file mapping from raw model output. It never fails: in
// the worst case the entire text becomes the primary HTML file's content.
func Files(raw string) Result {
	for tier, candidate := range candidates(raw) {
		obj, ok := parseObject(candidate)
		if !ok {
			continue
		}
		files := projectFiles(obj)
		if len(files) == 0 {
			// Parseable object without a recognizable file collection:
			// no further tier can do better, fall back.
			logging.Debug("extracted object has no file collection", "tier", tier)
			break
		}
		return Result{Files: files}
	}

	logging.Debug("no structured file collection found, using raw text", "len", len(raw))
	return Result{
		Files:    map[string]string{DefaultFile: raw},
		Fallback: true,
	}
}

// candidates yields candidate substrings in tier order:
//  1. content of a fence explicitly tagged as JSON
//  2. a balanced object inside any generic fence
//  3. the first balanced top-level object in the whole text, tracking
//     string-quote state so braces inside file contents don't miscount
//  4. the span from the first '{' to the last '}', unvalidated
func candidates(raw string) []string {
	var out []string

	if m := taggedFencePattern.FindStringSubmatch(raw); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}

	for _, m := range genericFencePattern.FindAllStringSubmatch(raw, -1) {
		if obj, ok := scanBalancedObject(m[1]); ok {
			out = append(out, obj)
			break
		}
	}

	if obj, ok := scanBalancedObject(raw); ok {
		out = append(out, obj)
	}

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			out = append(out, raw[start:end+1])
		}
	}

	return out
}

// parseObject parses candidate as a JSON object.
func parseObject(candidate string) (map[string]any, bool) {
	if candidate == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// projectFiles projects a loosely-typed object into a file mapping. The
// collection may sit under a wrapper key or be the object itself; file
// keys may carry a path prefix that is stripped before use.
func projectFiles(obj map[string]any) map[string]string {
	for _, key := range wrapperKeys {
		if nested, ok := obj[key].(map[string]any); ok {
			if files := stringValues(nested); len(files) > 0 {
				return files
			}
		}
	}
	return stringValues(obj)
}

func stringValues(obj map[string]any) map[string]string {
	files := make(map[string]string)
	for key, value := range obj {
		content, ok := value.(string)
		if !ok {
			continue
		}
		name := stripPathPrefix(key)
		if name == "" {
			continue
		}
		files[name] = content
	}
	return files
}

func stripPathPrefix(key string) string {
	key = strings.TrimSpace(key)
	if i := strings.LastIndexAny(key, "/\\"); i >= 0 {
		key = key[i+1:]
	}
	return key
}
