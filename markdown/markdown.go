// Package markdown turns user-submitted Markdown into HTML that is safe to
// embed in pages and API responses.
package markdown

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Raw HTML inside the source is dropped by goldmark unless WithUnsafe is set,
// so it is deliberately not set here.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
)

// Render converts body to HTML. On a conversion error the escaped source is
// returned so callers never store unsanitized text in the HTML field.
func Render(body string) string {
	if body == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(body), &buf); err != nil {
		return html.EscapeString(body)
	}
	return buf.String()
}
