package options

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	opts := Load(t.TempDir())

	assert.True(t, opts.Graphics.VSync)
	assert.Equal(t, 4, opts.Graphics.MSAA)
	assert.Equal(t, 120, opts.Game.AutosaveIntervalSec)
	assert.Equal(t, "main", opts.Game.LastMap)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	opts := Load(dir)
	opts.Graphics.VSync = false
	opts.Graphics.MSAA = 1
	opts.Game.LastMap = "factory2"

	require.NoError(t, Save(dir, opts))

	loaded := Load(dir)
	assert.False(t, loaded.Graphics.VSync)
	assert.Equal(t, 1, loaded.Graphics.MSAA)
	assert.Equal(t, "factory2", loaded.Game.LastMap)
	// Untouched keys keep their defaults.
	assert.Equal(t, 120, loaded.Game.AutosaveIntervalSec)
}

func TestMalformedFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "options.toml"), []byte("graphics = \"not a table"), 0o644))

	opts := Load(dir)
	assert.Equal(t, "main", opts.Game.LastMap)
}
