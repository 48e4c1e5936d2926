// Package sanitize turns stored content into HTML that is safe to embed in a reviewer UI.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Renderer escapes raw content and passes it through an allow-list policy.
// Content is never interpreted as markup; line breaks become <br>.
type Renderer struct {
	policy *bluemonday.Policy
}

func NewRenderer() *Renderer {
	p := bluemonday.NewPolicy()
	p.AllowElements("br")
	return &Renderer{policy: p}
}

func (r *Renderer) HTML(content string) string {
	escaped := html.EscapeString(content)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	return r.policy.Sanitize(escaped)
}
