package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain <b>text</b>", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain <b>text</b>", out)

	out, err = RenderTemplate(`Mode: {{upper .approach}} for {{default "anonymous" .model}} ({{lower .lang}}) if a < b`, map[string]any{"approach": "debug", "lang": "Go"})
	require.NoError(t, err)
	assert.Equal(t, "Mode: DEBUG for anonymous (go) if a < b", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}
