package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/warden/internal/paths"
	"grimm.is/warden/internal/profile"
	"grimm.is/warden/internal/rules"
)

func tempDirs(t *testing.T) {
	t.Helper()
	t.Setenv("WARDEN_CONFIG_DIR", t.TempDir())
	t.Setenv("WARDEN_DATA_DIR", t.TempDir())
	t.Setenv("WARDEN_STATE_DIR", t.TempDir())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	tempDirs(t)
	c := Load()
	assert.Equal(t, Default(), c)
	assert.Equal(t, profile.DefaultName, c.ActiveProfile)
	assert.True(t, c.ShowDiff)
	assert.EqualValues(t, DefaultAutoRevertSecs, c.AutoRevertSecs)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tempDirs(t)
	c := Default()
	c.ActiveProfile = "work"
	c.ThemeChoice = "gruvbox"
	c.ShowDiff = false
	require.NoError(t, Save(&c))

	got := Load()
	assert.Equal(t, c, got)

	info, err := os.Stat(paths.ConfigFilePath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadBrokenFileFallsBackWithoutOverwriting(t *testing.T) {
	tempDirs(t)
	require.NoError(t, paths.EnsureDirs())
	require.NoError(t, os.WriteFile(paths.ConfigFilePath(), []byte("{broken"), 0o600))

	c := Load()
	assert.Equal(t, Default(), c)

	data, err := os.ReadFile(paths.ConfigFilePath())
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(data))
}

func TestNormalizeClampsConfirmWindow(t *testing.T) {
	c := AppConfig{AutoRevertSecs: 2}
	c.Normalize()
	assert.EqualValues(t, 5, c.AutoRevertSecs)

	c = AppConfig{AutoRevertSecs: 600}
	c.Normalize()
	assert.EqualValues(t, 120, c.AutoRevertSecs)

	c = AppConfig{}
	c.Normalize()
	assert.EqualValues(t, DefaultAutoRevertSecs, c.AutoRevertSecs)
	assert.Equal(t, "nord", c.ThemeChoice)
}

func TestLoadIgnoresUnknownFields(t *testing.T) {
	tempDirs(t)
	require.NoError(t, paths.EnsureDirs())
	blob := `{"active_profile":"default","future_field":123,"show_diff":true,"show_zebra_striping":true}`
	require.NoError(t, os.WriteFile(paths.ConfigFilePath(), []byte(blob), 0o600))

	c := Load()
	assert.Equal(t, profile.DefaultName, c.ActiveProfile)
}

func TestResolveActiveProfile(t *testing.T) {
	tempDirs(t)
	store := &profile.Store{Dir: filepath.Join(t.TempDir(), "profiles")}

	// missing active profile falls back to default and creates it
	c := Default()
	c.ActiveProfile = "ghost"
	name, err := ResolveActiveProfile(&c, store)
	require.NoError(t, err)
	assert.Equal(t, profile.DefaultName, name)
	assert.Equal(t, profile.DefaultName, c.ActiveProfile)
	assert.True(t, store.Exists(profile.DefaultName))

	// existing profile resolves as-is
	require.NoError(t, store.Save("work", rules.NewRuleset()))
	c.ActiveProfile = "work"
	name, err = ResolveActiveProfile(&c, store)
	require.NoError(t, err)
	assert.Equal(t, "work", name)
}
