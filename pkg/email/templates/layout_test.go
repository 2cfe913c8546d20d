package templates_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email/templates"
)

func TestLayout(t *testing.T) {
	t.Parallel()

	html, err := templates.Render(context.Background(), templates.Layout(templates.LayoutParams{
		Title:     "alice commented",
		Preheader: "preview",
		Body:      "first line\n\n<script>x</script>",
		ActionURL: "https://example.com/notes/1",
		Footer:    "You can change your notification settings at any time.",
	}))
	require.NoError(t, err)

	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "alice commented")
	assert.Contains(t, html, ">first line</p>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, `href="https://example.com/notes/1"`)
	assert.Contains(t, html, ">View</a>")
}

func TestLayout_UnsafeURL(t *testing.T) {
	t.Parallel()

	html, err := templates.Render(context.Background(), templates.Layout(templates.LayoutParams{
		Title:     "x",
		ActionURL: "javascript:alert(1)",
	}))
	require.NoError(t, err)
	assert.NotContains(t, html, "javascript:")
}
