package bundle

import (
	"fmt"
	"html"
)

// defaultIndexHTML returns a minimal page wiring the required assets and
// registering the service worker.
func defaultIndexHTML(name string) string {
	if name == "" {
		name = "AppForge App"
	}
	title := html.EscapeString(name)
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%s</title>
  <link rel="manifest" href="manifest.json">
  <link rel="stylesheet" href="styles.css">
</head>
<body>
  <div id="app"><h1>%s</h1></div>
  <script src="app.js"></script>
  <script>
    if ('serviceWorker' in navigator) {
      navigator.serviceWorker.register('sw.js');
    }
  </script>
</body>
</html>
`, title, title)
}

const defaultAppJS = `document.addEventListener('DOMContentLoaded', () => {
  const app = document.getElementById('app');
  if (app && !app.firstElementChild) {
    app.textContent = 'App loaded.';
  }
});
`

const defaultStylesCSS = `:root {
  --fg: #1f2430;
  --bg: #ffffff;
}

body {
  margin: 0;
  font-family: system-ui, -apple-system, sans-serif;
  color: var(--fg);
  background: var(--bg);
}

#app {
  max-width: 960px;
  margin: 0 auto;
  padding: 1rem;
}
`
