package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"appforge/internal/client"
)

const systemPrompt = `You are a web-app generator. Produce a complete, self-contained
static web application from the user's description.

Respond with a single JSON object inside a json-tagged code fence. The
object maps file names to full file contents, for example:

` + "```json" + `
{"index.html": "...", "app.js": "...", "styles.css": "...", "manifest.json": "...", "sw.js": "..."}
` + "```" + `

Rules:
- index.html must reference app.js and styles.css with relative paths.
- Do not use external network resources; the app runs offline.
- Output nothing outside the fenced JSON object.`

// generateMessages builds the conversation for a fresh generation.
func generateMessages(prompt string) []client.Message {
	return []client.Message{
		{Role: client.RoleSystem, Content: systemPrompt},
		{Role: client.RoleUser, Content: prompt},
	}
}

// reworkMessages builds the conversation for modifying an existing
// bundle. The current files ride along so the model edits rather than
// regenerates, and it may return only the files it changed.
func reworkMessages(prompt string, existing map[string]string) []client.Message {
	var b strings.Builder
	b.WriteString("Modify the existing application below according to the instructions.\n")
	b.WriteString("Return only the files you changed, in the same JSON format.\n\n")
	b.WriteString("Current files:\n")

	names := make([]string, 0, len(existing))
	for name := range existing {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "--- %s ---\n%s\n", name, existing[name])
	}
	fmt.Fprintf(&b, "\nInstructions: %s\n", prompt)

	return []client.Message{
		{Role: client.RoleSystem, Content: systemPrompt},
		{Role: client.RoleUser, Content: b.String()},
	}
}
