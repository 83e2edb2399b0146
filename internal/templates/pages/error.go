// Package pages holds the few HTML responses Rollcall renders itself.
// Everything else is JSON.
package pages

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"
)

// ErrorPage renders a minimal standalone error page for browser requests.
// The message is escaped; callers pass only client-safe text.
func ErrorPage(code int, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := templ.EscapeString(fmt.Sprintf("%d %s", code, http.StatusText(code)))
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s | Rollcall</title>
<style>body{font-family:system-ui,sans-serif;max-width:32rem;margin:4rem auto;padding:0 1rem;color:#1f2937}a{color:#2563eb}</style>
</head>
<body>
<h1>%s</h1>
<p>%s</p>
<p><a href="/">Back to Rollcall</a></p>
</body>
</html>
`, title, title, templ.EscapeString(message))
		return err
	})
}
