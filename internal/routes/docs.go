package routes

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/MedLinkBack/internal/config"
)

const docsIndexHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{ .Title }}</title>
  <style>
    :root {
      color-scheme: light;
      --bg: #f4f7f8;
      --text: #10222b;
      --muted: #51646d;
      --accent: #1d6a86;
      --border: #d5dee2;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      font-family: Georgia, "Times New Roman", serif;
      color: var(--text);
      background: var(--bg);
    }
    main {
      max-width: 1040px;
      margin: 0 auto;
      padding: 40px 20px 56px;
    }
    h1 { margin: 0 0 8px; }
    p { color: var(--muted); margin: 0 0 24px; }
    table {
      width: 100%;
      border-collapse: collapse;
      background: #ffffff;
      border: 1px solid var(--border);
    }
    th, td {
      text-align: left;
      padding: 8px 12px;
      border-bottom: 1px solid var(--border);
      font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
      font-size: 0.9rem;
    }
    th { color: var(--muted); font-weight: normal; }
    .method { color: var(--accent); width: 7rem; }
  </style>
</head>
<body>
  <main>
    <h1>{{ .Title }}</h1>
    <p>{{ len .Routes }} routes, rendered {{ .LoadedAt }}. Stream clients connect to <code>/api/v1/stream?token=...</code>.</p>
    <table>
      <thead><tr><th>Method</th><th>Path</th></tr></thead>
      <tbody>
      {{- range .Routes }}
        <tr><td class="method">{{ .Method }}</td><td>{{ .Path }}</td></tr>
      {{- end }}
      </tbody>
    </table>
  </main>
</body>
</html>
`

type docsRoute struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

type docsPageData struct {
	Title    string
	LoadedAt string
	Routes   []docsRoute
}

// registerDocsRoutes serves an index of the registered API routes. Routes
// are read per request so the index includes everything added after it.
func registerDocsRoutes(app *fiber.App, cfg *config.Config) error {
	if !cfg.DocsEnabled() {
		return nil
	}

	indexTemplate, err := template.New("docs-index").Parse(docsIndexHTML)
	if err != nil {
		return fmt.Errorf("parse docs template: %w", err)
	}

	indexHandler := func(c *fiber.Ctx) error {
		applyDocsBaseHeaders(c, fiber.MIMETextHTMLCharsetUTF8)
		c.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; base-uri 'none'; form-action 'none'; frame-ancestors 'none'")

		pageData := docsPageData{
			Title:    "MedLinkBack API",
			LoadedAt: time.Now().UTC().Format(time.RFC3339),
			Routes:   listRoutes(app),
		}

		var body bytes.Buffer
		if err := indexTemplate.Execute(&body, pageData); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to render api docs")
		}

		return c.Status(fiber.StatusOK).Send(body.Bytes())
	}

	app.Get("/docs", indexHandler)
	app.Get("/docs/", indexHandler)
	app.Get("/docs/routes.json", func(c *fiber.Ctx) error {
		applyDocsBaseHeaders(c, fiber.MIMEApplicationJSONCharsetUTF8)
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"routes": listRoutes(app)})
	})

	return nil
}

func listRoutes(app *fiber.App) []docsRoute {
	var out []docsRoute
	for _, route := range app.GetRoutes(true) {
		if route.Method == fiber.MethodHead || strings.HasPrefix(route.Path, "/docs") {
			continue
		}
		out = append(out, docsRoute{Method: route.Method, Path: route.Path})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

func applyDocsBaseHeaders(c *fiber.Ctx, contentType string) {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "no-store, max-age=0")
	c.Set(fiber.HeaderPragma, "no-cache")
	c.Set(fiber.HeaderExpires, "0")
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	c.Set(fiber.HeaderXFrameOptions, "DENY")
	c.Set("Referrer-Policy", "no-referrer")
	c.Set("Cross-Origin-Resource-Policy", "same-origin")
	c.Set("X-Robots-Tag", "noindex, nofollow")
}
