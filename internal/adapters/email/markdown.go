package email

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// mdRenderer escapes raw HTML in the source (WithUnsafe is not set).
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// RenderMarkdown converts a markdown body to HTML. Line breaks are kept.
func RenderMarkdown(body string) (string, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FromMarkdown builds a request with both an HTML and a plain text body.
// If the markdown cannot be rendered the escaped text is used as HTML.
func FromMarkdown(to, subject, body string) SendRequest {
	rendered, err := RenderMarkdown(body)
	if err != nil {
		rendered = "<pre>" + html.EscapeString(body) + "</pre>"
	}
	return SendRequest{
		To:      []string{to},
		Subject: subject,
		HTML:    rendered,
		Text:    body,
	}
}
