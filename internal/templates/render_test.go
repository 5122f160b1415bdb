package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFragments(t *testing.T) {
	r := Default()

	out, err := r.Render("selected", map[string]any{"Item": "street light", "ID": "L1"})
	require.NoError(t, err)
	assert.Equal(t, "You have selected street light <b>L1</b>", out)

	out, err = r.Render("message-slot", map[string]any{"Slot": "s", "HTML": ""})
	require.NoError(t, err)
	assert.Contains(t, out, " hidden")

	_, err = r.Render("missing", nil)
	assert.Error(t, err)
}

func TestOverrides(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir)
	require.NoError(t, err)
	out, err := r.Render("zoom-prompt", map[string]any{"Item": "bin"})
	require.NoError(t, err)
	assert.Equal(t, "Zoom in to pick a bin from the map", out)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.html"),
		[]byte(`{{define "zoom-prompt"}}Closer for {{.Item}}{{end}}`), 0o644))
	require.NoError(t, r.Reload(dir))
	out, err = r.Render("zoom-prompt", map[string]any{"Item": "bin"})
	require.NoError(t, err)
	assert.Equal(t, "Closer for bin", out)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.html"), []byte(`{{define "x"}}`), 0o644))
	assert.Error(t, r.Reload(dir))
}
