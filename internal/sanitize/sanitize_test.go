package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRendererEscapesMarkup(t *testing.T) {
	r := NewRenderer()

	got := r.HTML(`<script>alert("x")</script> hello <b>there</b>`)
	assert.NotContains(t, got, "<script>")
	assert.NotContains(t, got, "<b>")
	assert.Contains(t, got, "&lt;script&gt;")
	assert.Contains(t, got, "hello")
}

func TestRendererKeepsLineBreaks(t *testing.T) {
	r := NewRenderer()
	assert.Equal(t, "line one<br>line two", r.HTML("line one\r\nline two"))
}

func TestRendererPlainText(t *testing.T) {
	r := NewRenderer()
	assert.Equal(t, "Thanks &amp; regards", r.HTML("Thanks & regards"))
}
