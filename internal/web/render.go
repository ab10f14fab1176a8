package web

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
)

var md = goldmark.New(
	goldmark.WithExtensions(
		highlighting.NewHighlighting(
			highlighting.WithStyle("monokai"),
		),
	),
)

// RenderCode renders source as a highlighted Python block. Raw HTML in the
// source is escaped since the renderer runs without html.WithUnsafe.
func RenderCode(src string) template.HTML {
	if src == "" {
		return ""
	}

	fence := codeFence(src)
	doc := fence + "python\n" + src
	if !strings.HasSuffix(src, "\n") {
		doc += "\n"
	}
	doc += fence + "\n"

	var buf bytes.Buffer
	if err := md.Convert([]byte(doc), &buf); err != nil {
		return template.HTML("<pre><code>" + template.HTMLEscapeString(src) + "</code></pre>")
	}
	return template.HTML(buf.String())
}

// codeFence returns a backtick fence longer than any run inside src.
func codeFence(src string) string {
	longest, run := 0, 0
	for _, r := range src {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}
