package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/vulkan-renderer/internal/config"
)

func resolveArgs(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	f := &flags{}
	cmd := newRootCommand(f)
	require.NoError(t, cmd.ParseFlags(args))
	return f.resolve(cmd)
}

func TestFlagsDefault(t *testing.T) {
	cfg, err := resolveArgs(t)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewer.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[window]
width = 1280
height = 720

[render]
present_mode = "fifo"
`), 0o600))

	cfg, err := resolveArgs(t, "--config", path, "--height", "900", "--uniform-strategy", "host-visible", "--validation")
	require.NoError(t, err)

	assert.Equal(t, 1280, cfg.Window.Width)
	assert.Equal(t, 900, cfg.Window.Height)
	assert.Equal(t, "fifo", cfg.Render.PresentMode)
	assert.True(t, cfg.HostVisibleUniforms())
	assert.True(t, cfg.Render.Validation)
}

func TestFlagsAreValidated(t *testing.T) {
	_, err := resolveArgs(t, "--present-mode", "vsync")
	assert.Error(t, err)

	_, err = resolveArgs(t, "--width", "0")
	assert.Error(t, err)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := resolveArgs(t, "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
