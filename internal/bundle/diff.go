package bundle

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// FileChange summarizes the edit applied to one file during a rework.
type FileChange struct {
	Path         string `json:"path"`
	Created      bool   `json:"created,omitempty"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
}

// ChangeReport lists what a rework changed.
type ChangeReport struct {
	BundleID string       `json:"bundle_id"`
	Changes  []FileChange `json:"changes"`
}

func (r *ChangeReport) add(path, before, after string) {
	change := FileChange{Path: path, Created: before == ""}
	change.LinesAdded, change.LinesRemoved = diffLineCounts(before, after)
	r.Changes = append(r.Changes, change)
}

// Summary renders the report as a short per-file listing.
func (r *ChangeReport) Summary() string {
	if len(r.Changes) == 0 {
		return "no files changed"
	}
	var b strings.Builder
	for _, c := range r.Changes {
		status := "modified"
		if c.Created {
			status = "created"
		}
		fmt.Fprintf(&b, "%s %s (+%d -%d)\n", status, c.Path, c.LinesAdded, c.LinesRemoved)
	}
	return strings.TrimRight(b.String(), "\n")
}

// diffLineCounts computes line-level added/removed counts between two
// file versions.
func diffLineCounts(before, after string) (added, removed int) {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(beforeChars, afterChars, false), lines)
	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if n == 0 && d.Text != "" {
			n = 1
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}
