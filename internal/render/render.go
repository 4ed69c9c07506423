// Package render turns markdown into sanitized HTML and the normalized plain
// text that annotation offsets are measured against.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
)

// Renderer is deterministic: the same markdown always yields the same pair.
type Renderer interface {
	Render(markdown string) (renderedHTML string, plain string, err error)
}

type MarkdownRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewMarkdownRenderer() *MarkdownRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			extension.Strikethrough,
			extension.Footnote,
			extension.Linkify,
		),
	)

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class", "id").Globally()

	return &MarkdownRenderer{md: md, policy: policy}
}

func (r *MarkdownRenderer) Render(markdown string) (string, string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", "", fmt.Errorf("render markdown: %w", err)
	}

	safe := r.policy.SanitizeBytes(buf.Bytes())
	plain, err := PlainText(string(safe))
	if err != nil {
		return "", "", err
	}
	return string(safe), plain, nil
}

// PlainText strips all markup from an HTML fragment, collapses whitespace
// runs to single spaces and trims the result. Changing this normalization
// invalidates stored offsets.
func PlainText(fragment string) (string, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(sb.String()), " "), nil
}
