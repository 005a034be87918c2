package web

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	descriptionRenderer  goldmark.Markdown
	descriptionSanitizer *bluemonday.Policy
)

func init() {
	// Raw HTML is omitted by goldmark's default renderer; bare URLs are linked.
	descriptionRenderer = goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
	)

	descriptionSanitizer = bluemonday.UGCPolicy()
	descriptionSanitizer.RequireNoFollowOnLinks(true)
	descriptionSanitizer.AddTargetBlankToFullyQualifiedLinks(true)
}

// RenderDescription converts a repository description from markdown into
// sanitized HTML. Returns empty string for empty input.
func RenderDescription(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := descriptionRenderer.Convert([]byte(src), &buf); err != nil {
		return descriptionSanitizer.Sanitize(src)
	}

	return descriptionSanitizer.Sanitize(buf.String())
}
