// Package paths resolves the per-user config, data, and state directories.
//
// Resolution order for each directory: WARDEN_*_DIR env override, then the
// XDG base directory, then the conventional dot-directory under $HOME. The
// env overrides exist so tests can point the whole application at a temp
// tree without touching the real user directories.
package paths

import (
	"os"
	"path/filepath"

	"grimm.is/warden/internal/brand"
	"grimm.is/warden/internal/errors"
)

// DirMode is the permission for every directory we create.
const DirMode = 0o700

// ConfigDir returns the directory for user preferences.
func ConfigDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, brand.LowerName)
	}
	return filepath.Join(homeDir(), ".config", brand.LowerName)
}

// DataDir returns the directory owned by the profile store.
func DataDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_DATA_DIR"); dir != "" {
		return dir
	}
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, brand.LowerName)
	}
	return filepath.Join(homeDir(), ".local", "share", brand.LowerName)
}

// StateDir returns the directory for the audit log and runtime snapshots.
func StateDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_STATE_DIR"); dir != "" {
		return dir
	}
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, brand.LowerName)
	}
	return filepath.Join(homeDir(), ".local", "state", brand.LowerName)
}

// ProfilesDir returns the subdirectory of the data dir that holds profiles.
func ProfilesDir() string {
	return filepath.Join(DataDir(), "profiles")
}

// SnapshotsDir returns the subdirectory of the state dir that holds kernel
// ruleset snapshots taken before an apply.
func SnapshotsDir() string {
	return filepath.Join(StateDir(), "snapshots")
}

// AuditLogPath returns the path of the JSON-lines audit log.
func AuditLogPath() string {
	return filepath.Join(StateDir(), brand.AuditFileName)
}

// ConfigFilePath returns the path of the application config file.
func ConfigFilePath() string {
	return filepath.Join(ConfigDir(), brand.ConfigFileName)
}

// EnsureDirs creates the config, data, state, profiles, and snapshots
// directories with owner-only permissions.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), DataDir(), StateDir(), ProfilesDir(), SnapshotsDir()} {
		if err := os.MkdirAll(dir, DirMode); err != nil {
			return errors.Wrapf(err, errors.KindIO, "creating directory %s", dir)
		}
	}
	return nil
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	// Last resort for stripped-down environments
	return "."
}
