package cniplugin

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, dir, name string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
}

func writeConfig(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestLoaderDegenerate(t *testing.T) {
	l := NewLoader("", "")
	assert.True(t, l.Degenerate())

	configs, err := l.Load()
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestLoaderHappyPath(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("os.Geteuid-gated loader behaves differently off Linux CI images")
	}
	if os.Geteuid() != 0 {
		t.Skip("loader requires root")
	}

	pluginDir := t.TempDir()
	configDir := t.TempDir()
	writeExecutable(t, pluginDir, "bridge")
	writeConfig(t, configDir, "10-net1.conf", `{"name":"net1","type":"bridge"}`)

	l := NewLoader(pluginDir, configDir)
	configs, err := l.Load()
	require.NoError(t, err)
	require.Len(t, configs, 1)

	cfg := configs["net1"]
	require.NotNil(t, cfg)
	assert.Equal(t, "net1", cfg.Name())
	assert.Equal(t, "bridge", cfg.PluginBinary())
	assert.Equal(t, "", cfg.IPAMBinary())
}

func TestLoaderRejectsDuplicateNames(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("loader requires root")
	}

	pluginDir := t.TempDir()
	configDir := t.TempDir()
	writeExecutable(t, pluginDir, "bridge")
	writeConfig(t, configDir, "10-net1.conf", `{"name":"net1","type":"bridge"}`)
	writeConfig(t, configDir, "20-net1.conf", `{"name":"net1","type":"bridge"}`)

	l := NewLoader(pluginDir, configDir)
	_, err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoaderRejectsNonExecutablePlugin(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("loader requires root")
	}

	pluginDir := t.TempDir()
	configDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "bridge"), []byte("not executable"), 0o644))
	writeConfig(t, configDir, "10-net1.conf", `{"name":"net1","type":"bridge"}`)

	l := NewLoader(pluginDir, configDir)
	_, err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not executable")
}

func TestLoaderRejectsEmptyPluginDir(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("loader requires root")
	}

	pluginDir := t.TempDir()
	configDir := t.TempDir()
	writeConfig(t, configDir, "10-net1.conf", `{"name":"net1","type":"bridge"}`)

	l := NewLoader(pluginDir, configDir)
	_, err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoaderZeroConfigsIsFatal(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("loader requires root")
	}

	pluginDir := t.TempDir()
	configDir := t.TempDir()
	writeExecutable(t, pluginDir, "bridge")

	l := NewLoader(pluginDir, configDir)
	_, err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid")
}
