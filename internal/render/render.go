// Package render turns a note into a standalone HTML page.
package render

import (
	"bytes"
	"html/template"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/kuitang/notekeeper/internal/notes"
	"github.com/microcosm-cc/bluemonday"
)

// ContentType is the Content-Type of a rendered page.
const ContentType = "text/html; charset=utf-8"

// htmlTemplate is the template for the complete HTML document
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <meta name="note-id" content="{{.ID}}">
    <style>
        :root {
            --text-color: #1a1a1a;
            --bg-color: #ffffff;
            --link-color: #0066cc;
            --code-bg: #f5f5f5;
            --border-color: #e0e0e0;
            --blockquote-border: #ddd;
        }

        @media (prefers-color-scheme: dark) {
            :root {
                --text-color: #e0e0e0;
                --bg-color: #1a1a1a;
                --link-color: #66b3ff;
                --code-bg: #2d2d2d;
                --border-color: #404040;
                --blockquote-border: #555;
            }
        }

        * {
            box-sizing: border-box;
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: var(--text-color);
            background-color: var(--bg-color);
            max-width: 800px;
            margin: 0 auto;
            padding: 2rem 1rem;
        }

        h1, h2, h3, h4, h5, h6 {
            margin-top: 1.5em;
            margin-bottom: 0.5em;
            line-height: 1.3;
        }

        h1 { font-size: 2rem; }
        h2 { font-size: 1.5rem; }
        h3 { font-size: 1.25rem; }

        a {
            color: var(--link-color);
            text-decoration: none;
        }

        a:hover {
            text-decoration: underline;
        }

        p {
            margin: 1em 0;
        }

        code {
            font-family: 'SF Mono', Monaco, 'Cascadia Code', 'Roboto Mono', Consolas, monospace;
            background-color: var(--code-bg);
            padding: 0.2em 0.4em;
            border-radius: 3px;
            font-size: 0.9em;
        }

        pre {
            background-color: var(--code-bg);
            padding: 1rem;
            border-radius: 6px;
            overflow-x: auto;
        }

        pre code {
            background-color: transparent;
            padding: 0;
        }

        blockquote {
            margin: 1em 0;
            padding: 0.5em 1em;
            border-left: 4px solid var(--blockquote-border);
            color: inherit;
            opacity: 0.85;
        }

        ul, ol {
            margin: 1em 0;
            padding-left: 2em;
        }

        li {
            margin: 0.25em 0;
        }

        img {
            max-width: 100%;
            height: auto;
        }

        table {
            width: 100%;
            border-collapse: collapse;
            margin: 1em 0;
        }

        th, td {
            border: 1px solid var(--border-color);
            padding: 0.5em 1em;
            text-align: left;
        }

        th {
            background-color: var(--code-bg);
        }

        .meta {
            color: #777;
            font-size: 0.875rem;
        }

        hr {
            border: none;
            border-top: 1px solid var(--border-color);
            margin: 2em 0;
        }
    </style>
</head>
<body>
    <article>
        <h1>{{.Title}}</h1>
        <p class="meta">{{if .CreatedAt}}Created <time datetime="{{.CreatedAt}}">{{.CreatedAt}}</time>{{end}}{{if .UpdatedAt}} &middot; Updated <time datetime="{{.UpdatedAt}}">{{.UpdatedAt}}</time>{{end}}</p>
        {{.Content}}
    </article>
</body>
</html>`

var pageTemplate = template.Must(template.New("note").Parse(htmlTemplate))

// templateData holds the data for the HTML template
type templateData struct {
	ID        int64
	Title     string
	CreatedAt string
	UpdatedAt string
	Content   template.HTML
}

// Markdown renders markdown to sanitized HTML. Raw HTML in the input is passed through
// bluemonday's UGC policy, so scripts and event handlers never reach the page.
func Markdown(s string) template.HTML {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(s))

	opts := mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	}
	htmlContent := markdown.Render(doc, mdhtml.NewRenderer(opts))

	policy := bluemonday.UGCPolicy()
	return template.HTML(policy.SanitizeBytes(htmlContent))
}

// Note renders a complete HTML document for note. The title is escaped by html/template.
func Note(note notes.Note) ([]byte, error) {
	data := templateData{
		ID:      note.ID,
		Title:   note.Title,
		Content: Markdown(note.Content),
	}
	m := note.ToMap()
	if ts, ok := m["created_at"].(*string); ok && ts != nil {
		data.CreatedAt = *ts
	}
	if ts, ok := m["updated_at"].(*string); ok && ts != nil {
		data.UpdatedAt = *ts
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
