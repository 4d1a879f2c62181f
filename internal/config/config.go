// Package config persists user preferences as a JSON file in the config
// directory, written with the same atomic 0600 pattern as profiles.
package config

import (
	"encoding/json"
	"os"

	"grimm.is/warden/internal/errors"
	"grimm.is/warden/internal/fsutil"
	"grimm.is/warden/internal/logging"
	"grimm.is/warden/internal/paths"
	"grimm.is/warden/internal/profile"
)

const fileMode = 0o600

// Dead-man timer bounds in seconds.
const (
	DefaultAutoRevertSecs = 15
	minAutoRevertSecs     = 5
	maxAutoRevertSecs     = 120
)

// AppConfig holds the user preferences that survive restarts. Unknown
// fields in the file are ignored so newer files load in older builds.
type AppConfig struct {
	// ActiveProfile names the profile loaded on startup. Must resolve to
	// an existing profile or the loader falls back to "default".
	ActiveProfile string `json:"active_profile"`

	ThemeChoice string `json:"theme_choice"`
	RegularFont string `json:"regular_font"`
	MonoFont    string `json:"mono_font"`

	ShowDiff          bool `json:"show_diff"`
	ShowZebraStriping bool `json:"show_zebra_striping"`

	// AutoRevertSecs is the dead-man confirm window. 0 means default.
	AutoRevertSecs uint32 `json:"auto_revert_secs,omitempty"`
}

// Default returns the out-of-the-box configuration.
func Default() AppConfig {
	return AppConfig{
		ActiveProfile:     profile.DefaultName,
		ThemeChoice:       "nord",
		RegularFont:       "system-default",
		MonoFont:          "system-default",
		ShowDiff:          true,
		ShowZebraStriping: true,
		AutoRevertSecs:    DefaultAutoRevertSecs,
	}
}

// Normalize fills blanks and clamps the confirm window into its bounds.
func (c *AppConfig) Normalize() {
	d := Default()
	if c.ActiveProfile == "" {
		c.ActiveProfile = d.ActiveProfile
	}
	if c.ThemeChoice == "" {
		c.ThemeChoice = d.ThemeChoice
	}
	if c.RegularFont == "" {
		c.RegularFont = d.RegularFont
	}
	if c.MonoFont == "" {
		c.MonoFont = d.MonoFont
	}
	switch {
	case c.AutoRevertSecs == 0:
		c.AutoRevertSecs = DefaultAutoRevertSecs
	case c.AutoRevertSecs < minAutoRevertSecs:
		c.AutoRevertSecs = minAutoRevertSecs
	case c.AutoRevertSecs > maxAutoRevertSecs:
		c.AutoRevertSecs = maxAutoRevertSecs
	}
}

// Save writes the config atomically.
func Save(c *AppConfig) error {
	if err := paths.EnsureDirs(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.KindCodec, "encoding config")
	}
	return fsutil.WriteFileAtomic(paths.ConfigFilePath(), data, fileMode)
}

// Load reads the config, returning defaults when the file is missing or
// unparseable. A broken file is never overwritten here; the next Save does
// that deliberately.
func Load() AppConfig {
	log := logging.Default().WithComponent("config")

	data, err := os.ReadFile(paths.ConfigFilePath())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("failed to read config", "error", err)
		}
		return Default()
	}

	var c AppConfig
	if err := json.Unmarshal(data, &c); err != nil {
		log.Warn("config file unparseable, using defaults", "error", err)
		return Default()
	}
	c.Normalize()
	return c
}

// ResolveActiveProfile returns the configured active profile if it exists
// in the store, otherwise "default", creating the default profile when it
// is missing so the name always resolves.
func ResolveActiveProfile(c *AppConfig, store *profile.Store) (string, error) {
	if store.Exists(c.ActiveProfile) {
		return c.ActiveProfile, nil
	}
	if err := store.EnsureDefault(); err != nil {
		return "", err
	}
	if c.ActiveProfile != profile.DefaultName {
		logging.Default().WithComponent("config").Warn(
			"active profile missing, falling back to default", "profile", c.ActiveProfile)
		c.ActiveProfile = profile.DefaultName
	}
	return profile.DefaultName, nil
}
