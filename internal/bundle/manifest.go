package bundle

import "encoding/json"

// manifestDefaults are the fields a web-app manifest must carry.
// The name fields get the bundle name when one is known.
func manifestDefaults(name string) map[string]any {
	if name == "" {
		name = "AppForge App"
	}
	return map[string]any{
		"name":             name,
		"short_name":       name,
		"start_url":        "index.html",
		"display":          "standalone",
		"background_color": "#ffffff",
		"theme_color":      "#1a73e8",
	}
}

// repairManifest fills missing manifest fields without touching fields
// that are already present. Unparseable or absent input is replaced by
// a complete default; a manifest that needs nothing is returned as-is.
func repairManifest(raw, name string) string {
	defaults := manifestDefaults(name)

	if raw == "" {
		return marshalManifest(defaults)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return marshalManifest(defaults)
	}

	changed := false
	for key, value := range defaults {
		if _, ok := fields[key]; !ok {
			fields[key] = value
			changed = true
		}
	}
	if !changed {
		return raw
	}
	return marshalManifest(fields)
}

func marshalManifest(fields map[string]any) string {
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
