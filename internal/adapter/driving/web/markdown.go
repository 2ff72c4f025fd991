package web

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
)

// importHelpMarkdown documents the format accepted by the import box. The
// example block is exactly what Export writes.
const importHelpMarkdown = "Paste any text containing one or more keys. Each key label starts a new " +
	"block; the account and password lines after it belong to that key.\n\n" +
	"```\n" +
	"Key: 0f1e2d3c-xxxx-xxxx-xxxx-xxxxxxxxxxxx:fx\n" +
	"Account: name@example.com\n" +
	"Password: secret\n" +
	"```\n\n" +
	"- Labels are case-insensitive: `Key`, `API Key` or `密钥`; `Account`, `Email` or `账户`; `Password` or `密码`.\n" +
	"- Full-width colons (`：`) work too.\n" +
	"- Keys already in the list are skipped.\n"

// importHelpHTML is importHelpMarkdown rendered once at startup.
var importHelpHTML string

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	htmlSanitizer = bluemonday.UGCPolicy()

	importHelpHTML = RenderMarkdown(importHelpMarkdown)
}

// RenderMarkdown converts a markdown string to sanitized HTML.
// Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return htmlSanitizer.Sanitize(src)
	}

	return htmlSanitizer.Sanitize(buf.String())
}
