package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStaticDefaults(t *testing.T) {
	c := Static(true, 2.0, true)
	require.True(t, c.OverclockEnabled())
	require.Equal(t, float32(2.0), c.Overclock())
	require.True(t, c.SyncOnSkipIdle())
	require.NoError(t, c.Close())
}

func TestStaticNeverNotifies(t *testing.T) {
	c := Static(false, 1.0, false)
	defer c.Close()

	called := false
	c.OnConfigChanged(func() { called = true })
	require.False(t, called)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.yaml")

	c, err := Load(path, nil)
	require.NoError(t, err)
	defer c.Close()

	require.False(t, c.OverclockEnabled())
	require.Equal(t, float32(1.0), c.Overclock())
	require.False(t, c.SyncOnSkipIdle())
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("overclock_enable: true\noverclock: 4.0\nsync_on_skip_idle: true\n"), 0o644))

	c, err := Load(path, nil)
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.OverclockEnabled())
	require.Equal(t, float32(4.0), c.Overclock())
	require.True(t, c.SyncOnSkipIdle())
}

func TestReloadNotifiesCallbacksOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("overclock_enable: false\noverclock: 1.0\nsync_on_skip_idle: false\n"), 0o644))

	c, err := Load(path, nil)
	require.NoError(t, err)
	defer c.Close()

	changed := make(chan struct{}, 1)
	c.OnConfigChanged(func() { changed <- struct{}{} })

	require.NoError(t, os.WriteFile(path, []byte("overclock_enable: true\noverclock: 3.0\nsync_on_skip_idle: false\n"), 0o644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload notification")
	}

	require.True(t, c.OverclockEnabled())
	require.Equal(t, float32(3.0), c.Overclock())
}

func TestRemoveConfigChangedCallback(t *testing.T) {
	c := Static(false, 1.0, false)
	defer c.Close()

	id := c.OnConfigChanged(func() { t.Fatal("callback should have been removed") })
	c.RemoveConfigChangedCallback(id)
	c.notify()
}
