package mcp

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBodyView(t *testing.T) {
	header := http.Header{"Content-Type": []string{"text/html"}}

	t.Run("short text is kept", func(t *testing.T) {
		view := bodyView(http.StatusOK, header, []byte("<p>hi</p>"))
		assert.Equal(t, "<p>hi</p>", view.Body)
		assert.Equal(t, 9, view.BodyBytes)
		assert.False(t, view.Truncated)
		assert.False(t, view.Binary)
	})

	t.Run("long text is cut at the limit", func(t *testing.T) {
		body := strings.Repeat("a", maxBodyText+10)
		view := bodyView(http.StatusOK, header, []byte(body))
		assert.Len(t, view.Body, maxBodyText)
		assert.True(t, view.Truncated)
		assert.Equal(t, maxBodyText+10, view.BodyBytes)
	})

	t.Run("cut never splits a rune", func(t *testing.T) {
		// The two-byte "é" straddles the limit
		body := strings.Repeat("a", maxBodyText-1) + "é" + "tail"
		view := bodyView(http.StatusOK, header, []byte(body))
		assert.True(t, view.Truncated)
		assert.True(t, utf8.ValidString(view.Body))
		assert.Len(t, view.Body, maxBodyText-1)
		assert.NotContains(t, view.Body, "�")
	})

	t.Run("binary body is not rendered", func(t *testing.T) {
		view := bodyView(http.StatusOK, header, []byte{0xff, 0xfe, 0x00})
		assert.True(t, view.Binary)
		assert.Empty(t, view.Body)
		assert.Equal(t, 3, view.BodyBytes)
	})
}
