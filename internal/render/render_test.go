package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_HeadingAndParagraph(t *testing.T) {
	r := NewMarkdownRenderer()

	htmlOut, plain, err := r.Render("# Hello\n\nThe   quick *brown* fox\n")
	require.NoError(t, err)

	assert.Contains(t, htmlOut, "<h1")
	assert.Contains(t, htmlOut, "<em>brown</em>")
	assert.Equal(t, "Hello The quick brown fox", plain)
}

func TestRender_StripsScripts(t *testing.T) {
	r := NewMarkdownRenderer()

	htmlOut, plain, err := r.Render("<script>alert(1)</script>\n\nok <b onclick=\"x()\">bold</b>\n")
	require.NoError(t, err)

	assert.NotContains(t, htmlOut, "<script")
	assert.NotContains(t, htmlOut, "onclick")
	assert.NotContains(t, plain, "alert")
	assert.Equal(t, "ok bold", plain)
}

func TestRender_Deterministic(t *testing.T) {
	r := NewMarkdownRenderer()
	src := "| a | b |\n|---|---|\n| 1 | 2 |\n\n~~old~~ new"

	h1, p1, err := r.Render(src)
	require.NoError(t, err)
	h2, p2, err := r.Render(src)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, p1, p2)
	assert.Contains(t, h1, "<table>")
}

func TestRender_Empty(t *testing.T) {
	_, plain, err := NewMarkdownRenderer().Render("")
	require.NoError(t, err)
	assert.Equal(t, "", plain)
}

func TestPlainText_DecodesEntitiesAndCollapses(t *testing.T) {
	plain, err := PlainText("<p>  Tom &amp; Jerry </p>\n\n<p>\tagain</p>")
	require.NoError(t, err)
	assert.Equal(t, "Tom & Jerry again", plain)
}
