package web

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderCodeEmpty(t *testing.T) {
	assert.Equal(t, "", string(RenderCode("")))
}

func TestRenderCodeBlock(t *testing.T) {
	html := string(RenderCode("def main():\n    print('hi')\n"))
	assert.Contains(t, html, "<pre")
	assert.Contains(t, html, "main")
}

func TestRenderCodeEscapesHTML(t *testing.T) {
	html := string(RenderCode("x = '<script>alert(1)</script>'"))
	assert.NotContains(t, html, "<script>")
}

func TestRenderCodeWithFenceInside(t *testing.T) {
	src := "doc = '''\n```\nnot a fence\n```\n'''"
	html := string(RenderCode(src))
	assert.Contains(t, html, "not a fence")
	assert.Equal(t, 1, strings.Count(html, "<pre"))
}

func TestCodeFence(t *testing.T) {
	assert.Equal(t, "```", codeFence("print(1)"))
	assert.Equal(t, "````", codeFence("a ``` b"))
	assert.Equal(t, "``````", codeFence("`````"))
}
